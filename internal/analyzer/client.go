package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Form field names expected by the analysis service.
const (
	FieldFile     = "file"
	FieldLanguage = "language"
	FieldLyrics   = "lyrics_text"
)

// maxErrorBody caps how much of a failed response is kept for logging
const maxErrorBody = 4096

var (
	// ErrUnavailable means the analysis service could not be reached.
	ErrUnavailable = errors.New("analysis service unavailable")
	// ErrTimeout means the analysis call exceeded its deadline.
	ErrTimeout = errors.New("analysis service timed out")
	// ErrInvalidResponse means a success status came back without a JSON body.
	ErrInvalidResponse = errors.New("analysis service returned an invalid response")
)

// StatusError reports a non-2xx answer from the analysis service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client forwards staged uploads to the analysis service
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	inFlight        atomic.Int64
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains analyzer client configuration
type Config struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// Request is one outbound forward
type Request struct {
	Payload     io.Reader
	Filename    string
	ContentType string
	Language    string
	Lyrics      string
	HasLyrics   bool
	RequestID   string
}

// Response is a successful answer from the analysis service
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int64         `json:"active_requests"`
}

// NewClient creates a new analysis service client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 300 * time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "analyze-relay/1.0"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Endpoint returns the configured analysis URL
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// Analyze sends the payload and metadata to the analysis service once. The
// multipart body is streamed, so the payload is never held in memory.
func (c *Client) Analyze(ctx context.Context, request *Request) (*Response, error) {
	startTime := time.Now()
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	c.incrementTotalRequests()

	response, err := c.doRequest(ctx, request)
	elapsed := time.Since(startTime)
	if err != nil {
		c.incrementFailedRequests()
		return nil, err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(elapsed)
	response.Duration = elapsed
	return response, nil
}

func (c *Client) doRequest(ctx context.Context, request *Request) (*Response, error) {
	body, contentType := c.streamMultipart(request)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if request.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", request.RequestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", classifyTransportError(err))
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: %d bytes of non-JSON body", ErrInvalidResponse, len(respBody))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// streamMultipart writes the form in a goroutine and returns the read end.
// Closing the returned reader stops the writer.
func (c *Client) streamMultipart(request *Request) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(writer, request))
	}()

	return pr, writer.FormDataContentType()
}

func writeForm(writer *multipart.Writer, request *Request) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldFile, escapeQuotes(request.Filename)))
	contentType := request.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, request.Payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	if err := writer.WriteField(FieldLanguage, request.Language); err != nil {
		return fmt.Errorf("failed to write field %s: %w", FieldLanguage, err)
	}

	if request.HasLyrics {
		if err := writer.WriteField(FieldLyrics, request.Lyrics); err != nil {
			return fmt.Errorf("failed to write field %s: %w", FieldLyrics, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// classifyTransportError tags timeouts and connection failures with the
// package sentinels while keeping the original error in the chain.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  c.inFlight.Load(),
	}
}
