// Command fakeanalyzer is a local stand-in for the analysis service. It
// accepts the same multipart contract as the real service and answers with
// deterministic segments, for end-to-end testing of the relay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skgma1019/music-player-app/internal/analyzer"
	"github.com/skgma1019/music-player-app/internal/audio"
)

const (
	defaultDuration = 30.0 // seconds, used when the upload is not a parseable WAV
	maxMemory       = 32 << 20
	placeholderText = "(no lyrics provided)"
)

// Response is the body returned by POST /analyze
type Response struct {
	Segments []Segment `json:"segments"`
}

type fakeServer struct {
	logger *slog.Logger
	delay  time.Duration
}

func (s *fakeServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(analyzer.FieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing %q part: %w", analyzer.FieldFile, err))
		return
	}
	defer file.Close()

	language := r.FormValue(analyzer.FieldLanguage)
	if language == "" {
		language = "auto"
	}
	lyrics := r.FormValue(analyzer.FieldLyrics)

	duration := defaultDuration
	info, err := audio.Probe(file)
	if err == nil && info.WAV != nil && info.WAV.Duration > 0 {
		duration = info.WAV.Duration
	}

	s.logger.Info("Analysis request received",
		slog.String("filename", header.Filename),
		slog.Int64("size_bytes", header.Size),
		slog.String("content_type", header.Header.Get("Content-Type")),
		slog.String("language", language),
		slog.Int("lyrics_bytes", len(lyrics)),
		slog.String("request_id", r.Header.Get("X-Request-ID")),
	)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{Segments: buildSegments(lyrics, duration)})
}

// buildSegments uses timestamped lyrics as-is, spreads plain lyrics over the
// audio duration and falls back to a single placeholder segment.
func buildSegments(lyrics string, duration float64) []Segment {
	if lyrics != "" {
		if segments := parseLRC(lyrics); len(segments) > 0 {
			return segments
		}
		if segments := alignLines(lyrics, duration); len(segments) > 0 {
			return segments
		}
	}
	return []Segment{{Start: 0, Text: placeholderText}}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func newMux(s *fakeServer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"healthy"}`)
	})
	return mux
}

func newCommand() *cobra.Command {
	var (
		listen string
		delay  time.Duration
	)

	cmd := &cobra.Command{
		Use:          "fakeanalyzer",
		Short:        "Local stand-in for the audio analysis service",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			srv := &http.Server{
				Addr:              listen,
				Handler:           newMux(&fakeServer{logger: logger, delay: delay}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.Info("Fake analysis service listening",
				slog.String("address", listen),
				slog.Duration("delay", delay),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8000", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "simulated processing time")
	return cmd
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
