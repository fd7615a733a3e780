package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedForm struct {
	fields      map[string][]string
	file        []byte
	filename    string
	partType    string
	requestID   string
	contentType string
}

func newAnalysisServer(t *testing.T, status int, body string) (*httptest.Server, chan capturedForm) {
	t.Helper()

	captured := make(chan capturedForm, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(32<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		form := capturedForm{
			fields:      r.MultipartForm.Value,
			requestID:   r.Header.Get("X-Request-ID"),
			contentType: r.Header.Get("Content-Type"),
		}
		if file, header, err := r.FormFile(FieldFile); err == nil {
			form.file, _ = io.ReadAll(file)
			form.filename = header.Filename
			form.partType = header.Header.Get("Content-Type")
			file.Close()
		}
		captured <- form

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestNewClientDefaults(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	client, err := NewClient(Config{Endpoint: "http://127.0.0.1:8000/analyze"})
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, client.httpClient.Timeout)
	assert.Equal(t, "http://127.0.0.1:8000/analyze", client.Endpoint())
}

func TestAnalyzeForwardsFields(t *testing.T) {
	srv, captured := newAnalysisServer(t, http.StatusOK, `{"segments":[]}`)

	client, err := NewClient(Config{Endpoint: srv.URL + "/analyze"})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x42}, 10*1024)
	resp, err := client.Analyze(context.Background(), &Request{
		Payload:     bytes.NewReader(payload),
		Filename:    "take \"1\".wav",
		ContentType: "audio/wav",
		Language:    "ko",
		Lyrics:      "[00:01.00] hello",
		HasLyrics:   true,
		RequestID:   "req-123",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"segments":[]}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)

	form := <-captured
	assert.Equal(t, payload, form.file)
	assert.Equal(t, `take "1".wav`, form.filename)
	assert.Equal(t, "audio/wav", form.partType)
	assert.Equal(t, []string{"ko"}, form.fields[FieldLanguage])
	assert.Equal(t, []string{"[00:01.00] hello"}, form.fields[FieldLyrics])
	assert.Equal(t, "req-123", form.requestID)
	assert.Contains(t, form.contentType, "multipart/form-data; boundary=")
}

func TestAnalyzeOmitsLyricsWhenAbsent(t *testing.T) {
	srv, captured := newAnalysisServer(t, http.StatusOK, `{}`)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), &Request{
		Payload:  bytes.NewReader([]byte("abc")),
		Filename: "a.bin",
		Language: "auto",
	})
	require.NoError(t, err)

	form := <-captured
	_, present := form.fields[FieldLyrics]
	assert.False(t, present)
	assert.Equal(t, []string{"auto"}, form.fields[FieldLanguage])
	assert.Equal(t, "application/octet-stream", form.partType)
}

func TestAnalyzeNonSuccessStatus(t *testing.T) {
	srv, _ := newAnalysisServer(t, http.StatusInternalServerError, `{"error":"ffmpeg not found"}`)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "ffmpeg not found")

	stats := client.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
	assert.Equal(t, int64(0), stats.ActiveRequests)
}

func TestAnalyzeInvalidJSON(t *testing.T) {
	srv, _ := newAnalysisServer(t, http.StatusOK, `<html>oops</html>`)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, err := NewClient(Config{Endpoint: endpoint})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAnalyzeContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Analyze(ctx, &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGetStatsSuccessRate(t *testing.T) {
	srv, captured := newAnalysisServer(t, http.StatusOK, `{"ok":true}`)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.Analyze(context.Background(), &Request{Payload: bytes.NewReader([]byte("x")), Filename: "x.wav", Language: "auto"})
		require.NoError(t, err)
		<-captured
	}

	stats := client.GetStats()
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, uint64(2), stats.SuccessRequests)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.001)
	assert.Greater(t, stats.AvgResponseTime, time.Duration(0))
}
