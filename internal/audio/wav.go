package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// riffHeader is the 12-byte preamble of a RIFF/WAVE file
type riffHeader struct {
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32  // File size - 8 bytes
	Format    [4]byte // "WAVE"
}

// chunkHeader precedes every sub-chunk ("fmt ", "LIST", "data", ...)
type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// fmtChunk is the PCM portion of the "fmt " sub-chunk
type fmtChunk struct {
	AudioFormat   uint16 // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
}

// WAVInfo holds the header details of a WAV payload
type WAVInfo struct {
	AudioFormat   uint16  `json:"audio_format"`
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// maxChunksScanned bounds the walk over sub-chunks before "data"
const maxChunksScanned = 64

// ReadWAVInfo reads the RIFF header and walks sub-chunks until the data
// chunk, without reading the audio samples themselves.
func ReadWAVInfo(r io.Reader) (*WAVInfo, error) {
	var riff riffHeader
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(riff.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		format  *fmtChunk
		scanned int
	)
	for scanned = 0; scanned < maxChunksScanned; scanned++ {
		var chunk chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("invalid WAV file: missing data chunk")
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", chunk.Size)
			}
			var f fmtChunk
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if err := skip(r, int64(chunk.Size)-16+int64(chunk.Size%2)); err != nil {
				return nil, err
			}
			format = &f

		case "data":
			if format == nil {
				return nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			return newWAVInfo(format, chunk.Size)

		default:
			// Chunks are word aligned.
			if err := skip(r, int64(chunk.Size)+int64(chunk.Size%2)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("invalid WAV file: no data chunk within %d chunks", maxChunksScanned)
}

func newWAVInfo(f *fmtChunk, dataSize uint32) (*WAVInfo, error) {
	if f.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	info := &WAVInfo{
		AudioFormat:   f.AudioFormat,
		SampleRate:    f.SampleRate,
		Channels:      f.NumChannels,
		BitsPerSample: f.BitsPerSample,
		DataSize:      dataSize,
	}

	if f.ByteRate > 0 {
		info.Duration = float64(dataSize) / float64(f.ByteRate)
	} else if f.BitsPerSample > 0 && f.NumChannels > 0 {
		frameBytes := uint32(f.NumChannels) * uint32(f.BitsPerSample) / 8
		if frameBytes > 0 {
			info.Duration = float64(dataSize/frameBytes) / float64(f.SampleRate)
		}
	}

	return info, nil
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(n, io.SeekCurrent); err != nil {
			return fmt.Errorf("failed to skip chunk: %w", err)
		}
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("failed to skip chunk: %w", err)
	}
	return nil
}
