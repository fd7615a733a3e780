package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/skgma1019/music-player-app/internal/analyzer"
	"github.com/skgma1019/music-player-app/internal/audio"
	"github.com/skgma1019/music-player-app/internal/metrics"
	"github.com/skgma1019/music-player-app/internal/requestctx"
	"github.com/skgma1019/music-player-app/internal/staging"
)

// Inbound form field names.
const (
	FieldAudio    = "audio"
	FieldLanguage = "language"
	FieldLyrics   = "lyrics_text"

	// DefaultLanguage asks the analysis service to detect the language.
	DefaultLanguage = "auto"

	// writeMargin is the time left to write the response after the
	// analysis call has used its full timeout.
	writeMargin = 30 * time.Second
)

// Analyzer forwards one staged upload to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, request *analyzer.Request) (*analyzer.Response, error)
}

// Config contains relay handler limits
type Config struct {
	MaxUploadBytes int64         // 0 means unlimited
	MaxFieldBytes  int64         // per text field
	Timeout        time.Duration // bound on the analysis call
}

// Request is the parsed inbound upload
type Request struct {
	Audio     *staging.File
	Language  string
	Lyrics    string
	HasLyrics bool
}

// Handler relays POST /analyze uploads to the analysis service
type Handler struct {
	config   Config
	store    *staging.Store
	analyzer Analyzer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates the relay handler
func NewHandler(cfg Config, store *staging.Store, a Analyzer, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if cfg.MaxFieldBytes <= 0 {
		cfg.MaxFieldBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	return &Handler{
		config:   cfg,
		store:    store,
		analyzer: a,
		metrics:  m,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := requestctx.Logger(r.Context(), h.logger)

	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	}

	req, err := h.readRequest(r)
	release := func() {}
	if req != nil && req.Audio != nil {
		staged := req.Audio
		release = sync.OnceFunc(func() { h.release(staged, logger) })
		defer release()
	}
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.extendWriteDeadline(w, logger)

	logger.Info("Upload received",
		slog.String("filename", req.Audio.OriginalName),
		slog.Int64("size_bytes", req.Audio.Size),
		slog.String("language", req.Language),
		slog.Bool("has_lyrics", req.HasLyrics),
	)

	resp, err := h.forward(r.Context(), req, logger)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	// Remove the staged file before answering; the deferred release is then a no-op.
	release()

	logger.Info("Analysis relayed",
		slog.Int("upstream_status", resp.StatusCode),
		slog.Int("response_bytes", len(resp.Body)),
		slog.Duration("duration", resp.Duration),
	)

	h.metrics.RecordRelayOutcome("ok")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body); err != nil {
		logger.Warn("Failed to write response", slog.String("error", err.Error()))
	}
}

// extendWriteDeadline gives the response its own deadline once the body has
// been read, so the server-wide WriteTimeout cannot cut off a long analysis.
func (h *Handler) extendWriteDeadline(w http.ResponseWriter, logger *slog.Logger) {
	deadline := time.Now().Add(h.config.Timeout + writeMargin)
	err := http.NewResponseController(w).SetWriteDeadline(deadline)
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("Failed to extend write deadline", slog.String("error", err.Error()))
	}
}

// forward probes the staged upload, re-opens it and sends it downstream.
// The call is detached from the inbound request so a client disconnect does
// not abort it; only the configured timeout bounds it.
func (h *Handler) forward(parent context.Context, req *Request, logger *slog.Logger) (*analyzer.Response, error) {
	info, err := audio.ProbeFile(req.Audio.Path)
	if err != nil {
		logger.Warn("Could not fully probe upload", slog.String("error", err.Error()))
	}
	if info != nil {
		req.Audio.ContentType = info.ContentType()
		attrs := []any{slog.String("mime_type", info.MIMEType)}
		if info.WAV != nil {
			attrs = append(attrs,
				slog.Int("sample_rate", int(info.WAV.SampleRate)),
				slog.Int("channels", int(info.WAV.Channels)),
				slog.Float64("duration_seconds", info.WAV.Duration),
			)
		}
		if !info.IsAudio() {
			logger.Warn("Upload does not look like audio", attrs...)
		} else {
			logger.Debug("Upload probed", attrs...)
		}
	}

	payload, err := req.Audio.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}
	defer payload.Close()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), h.config.Timeout)
	defer cancel()

	h.metrics.RecordAnalyzerRequest()
	start := time.Now()
	resp, err := h.analyzer.Analyze(ctx, &analyzer.Request{
		Payload:     payload,
		Filename:    req.Audio.OriginalName,
		ContentType: req.Audio.ContentType,
		Language:    req.Language,
		Lyrics:      req.Lyrics,
		HasLyrics:   req.HasLyrics,
		RequestID:   requestctx.RequestID(parent),
	})
	if err != nil {
		h.metrics.RecordAnalyzerFailure(time.Since(start).Seconds())
		return nil, err
	}
	h.metrics.RecordAnalyzerSuccess(time.Since(start).Seconds())
	return resp, nil
}

// readRequest streams the multipart body, staging the audio part as it
// arrives. A non-nil Request may come back together with an error when the
// audio was already staged; the caller owns its cleanup.
func (h *Handler) readRequest(r *http.Request) (*Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	req := &Request{}
	var language string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return req, h.bodyError(err)
		}

		switch part.FormName() {
		case FieldAudio:
			if req.Audio != nil || part.FileName() == "" {
				err = h.drain(part)
				break
			}
			body := &trackedReader{r: part}
			var staged *staging.File
			staged, err = h.store.Stage(r.Context(), body, part.FileName())
			if err != nil {
				part.Close()
				// A failed read is the client's body, not the disk.
				if body.err != nil {
					return req, h.bodyError(body.err)
				}
				return req, fmt.Errorf("%w: %w", ErrStaging, err)
			}
			req.Audio = staged
			h.metrics.RecordStaged(staged.Size)

		case FieldLanguage:
			language, err = h.readField(part)

		case FieldLyrics:
			var lyrics string
			lyrics, err = h.readField(part)
			// An empty lyrics field is treated like an absent one.
			if err == nil && lyrics != "" {
				req.Lyrics = lyrics
				req.HasLyrics = true
			}

		default:
			err = h.drain(part)
		}
		part.Close()
		if err != nil {
			return req, err
		}
	}

	if req.Audio == nil {
		return req, ErrMissingAudio
	}

	req.Language = language
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	return req, nil
}

func (h *Handler) readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, h.config.MaxFieldBytes+1))
	if err != nil {
		return "", h.bodyError(err)
	}
	if int64(len(data)) > h.config.MaxFieldBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrFieldTooLarge, part.FormName(), h.config.MaxFieldBytes)
	}
	return string(data), nil
}

// bodyError separates an oversized body from a malformed one.
func (h *Handler) bodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}

// trackedReader remembers the first read error other than io.EOF.
type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// release removes the staged file. Failures are logged and counted but never
// change the response.
func (h *Handler) release(staged *staging.File, logger *slog.Logger) {
	err := staged.Remove()
	h.metrics.RecordUnstaged(err)
	if err != nil {
		logger.Error("Failed to remove staged upload",
			slog.String("path", staged.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("Staged upload removed", slog.String("path", staged.Path))
}

func (h *Handler) fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	outcome := Classify(err)

	attrs := []any{
		slog.String("kind", string(outcome.Kind)),
		slog.Int("status", outcome.Status),
		slog.String("error", err.Error()),
	}
	var statusErr *analyzer.StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs,
			slog.Int("upstream_status", statusErr.StatusCode),
			slog.String("upstream_body", statusErr.Body),
		)
	}

	if outcome.Status >= http.StatusInternalServerError {
		logger.Error("Analyze request failed", attrs...)
		h.metrics.RecordRelayOutcome("error")
	} else {
		logger.Warn("Analyze request rejected", attrs...)
		h.metrics.RecordRelayOutcome("rejected")
	}
	h.metrics.RecordRelayFailure(string(outcome.Kind))

	http.Error(w, outcome.Message, outcome.Status)
}

func (h *Handler) drain(part *multipart.Part) error {
	if _, err := io.Copy(io.Discard, part); err != nil {
		return h.bodyError(err)
	}
	return nil
}
