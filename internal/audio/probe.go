package audio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when the payload type cannot be detected
const DefaultContentType = "application/octet-stream"

// Info describes a staged payload
type Info struct {
	MIMEType  string   `json:"mime_type"`
	Extension string   `json:"extension"`
	WAV       *WAVInfo `json:"wav,omitempty"`
}

// IsAudio reports whether the detected type is an audio (or audio-bearing
// video) container.
func (i *Info) IsAudio() bool {
	return strings.HasPrefix(i.MIMEType, "audio/") || strings.HasPrefix(i.MIMEType, "video/")
}

// ContentType returns the MIME type to advertise for the payload.
func (i *Info) ContentType() string {
	if i == nil || i.MIMEType == "" {
		return DefaultContentType
	}
	return i.MIMEType
}

// Probe detects the payload type from its leading bytes and, for WAV
// payloads, parses the header. A malformed WAV header yields a non-nil Info
// together with the parse error.
func Probe(r io.ReadSeeker) (*Info, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}

	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}

	if !mtype.Is("audio/wav") {
		return info, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return info, fmt.Errorf("rewind payload: %w", err)
	}
	wav, err := ReadWAVInfo(r)
	if err != nil {
		return info, fmt.Errorf("parse wav header: %w", err)
	}
	info.WAV = wav

	return info, nil
}

// ProbeFile opens path and probes it.
func ProbeFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	return Probe(f)
}
