package relay

import (
	"errors"
	"net/http"

	"github.com/skgma1019/music-player-app/internal/analyzer"
)

// Fixed caller-facing messages. Failure detail only goes to the log.
const (
	MsgMissingAudio   = "no audio file was uploaded"
	MsgAnalysisFailed = "analysis server connection failed or analysis error"
)

var (
	// ErrMissingAudio means the request carried no audio file part.
	ErrMissingAudio = errors.New("audio file is missing")
	// ErrMalformedRequest means the body was not readable multipart form data.
	ErrMalformedRequest = errors.New("malformed multipart request")
	// ErrFieldTooLarge means a text field exceeded the configured limit.
	ErrFieldTooLarge = errors.New("form field too large")
	// ErrStaging means the upload could not be written to or read back from
	// transient storage.
	ErrStaging = errors.New("staging upload failed")
)

// Kind names a class of failure
type Kind string

// Failure kinds
const (
	KindValidation      Kind = "validation"
	KindTooLarge        Kind = "too_large"
	KindTransport       Kind = "transport"
	KindTimeout         Kind = "timeout"
	KindUpstreamStatus  Kind = "upstream_status"
	KindInvalidResponse Kind = "invalid_response"
	KindIO              Kind = "io"
)

// Outcome is what the caller sees for a failed request
type Outcome struct {
	Kind    Kind
	Status  int
	Message string
}

// Classify maps any failure from reading, staging or forwarding to one of a
// closed set of caller-visible outcomes. Callers only ever see 400 with the
// missing-file message or 500 with the failure message; Kind is for logs
// and metrics.
func Classify(err error) Outcome {
	var (
		maxBytesErr *http.MaxBytesError
		statusErr   *analyzer.StatusError
	)

	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, ErrFieldTooLarge):
		return Outcome{Kind: KindTooLarge, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	case errors.Is(err, ErrMissingAudio), errors.Is(err, ErrMalformedRequest):
		return Outcome{Kind: KindValidation, Status: http.StatusBadRequest, Message: MsgMissingAudio}
	case errors.Is(err, analyzer.ErrTimeout):
		return Outcome{Kind: KindTimeout, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	case errors.As(err, &statusErr):
		return Outcome{Kind: KindUpstreamStatus, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	case errors.Is(err, analyzer.ErrInvalidResponse):
		return Outcome{Kind: KindInvalidResponse, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	case errors.Is(err, analyzer.ErrUnavailable):
		return Outcome{Kind: KindTransport, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	default:
		return Outcome{Kind: KindIO, Status: http.StatusInternalServerError, Message: MsgAnalysisFailed}
	}
}
