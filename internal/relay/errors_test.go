package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skgma1019/music-player-app/internal/analyzer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{"missing audio", ErrMissingAudio, KindValidation, http.StatusBadRequest, MsgMissingAudio},
		{"malformed body", fmt.Errorf("%w: %w", ErrMalformedRequest, io.ErrUnexpectedEOF), KindValidation, http.StatusBadRequest, MsgMissingAudio},
		{"body limit while reading a part", fmt.Errorf("%w: %w", ErrMalformedRequest, &http.MaxBytesError{Limit: 10}), KindTooLarge, http.StatusInternalServerError, MsgAnalysisFailed},
		{"body limit", fmt.Errorf("write staged file: %w", &http.MaxBytesError{Limit: 10}), KindTooLarge, http.StatusInternalServerError, MsgAnalysisFailed},
		{"field limit", fmt.Errorf("%w: lyrics_text", ErrFieldTooLarge), KindTooLarge, http.StatusInternalServerError, MsgAnalysisFailed},
		{"timeout", fmt.Errorf("%w: %w", analyzer.ErrTimeout, context.DeadlineExceeded), KindTimeout, http.StatusInternalServerError, MsgAnalysisFailed},
		{"upstream status", &analyzer.StatusError{StatusCode: http.StatusBadGateway, Body: "boom"}, KindUpstreamStatus, http.StatusInternalServerError, MsgAnalysisFailed},
		{"invalid response", fmt.Errorf("%w: not json", analyzer.ErrInvalidResponse), KindInvalidResponse, http.StatusInternalServerError, MsgAnalysisFailed},
		{"unreachable", fmt.Errorf("%w: connection refused", analyzer.ErrUnavailable), KindTransport, http.StatusInternalServerError, MsgAnalysisFailed},
		{"staging", fmt.Errorf("%w: disk full", ErrStaging), KindIO, http.StatusInternalServerError, MsgAnalysisFailed},
		{"unknown", errors.New("something else"), KindIO, http.StatusInternalServerError, MsgAnalysisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Classify(tt.err)
			assert.Equal(t, tt.kind, outcome.Kind)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.message, outcome.Message)
		})
	}
}
