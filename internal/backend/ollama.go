// Package backend talks to an Ollama-compatible text-generation server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/fern/internal/errors"
)

// Options are the sampling options sent with a generate request.
type Options struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	NumPredict       int     `json:"num_predict,omitempty"`
	NumCtx           int     `json:"num_ctx,omitempty"`
}

// Request is a fill-in-the-middle generate request.
type Request struct {
	Model   string  `json:"model"`
	System  string  `json:"system"`
	Prompt  string  `json:"prompt"`
	Suffix  string  `json:"suffix"`
	Options Options `json:"options"`
	Stream  bool    `json:"stream"`
}

// Chunk is one line of the streamed response. The last chunk has Done set.
type Chunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Stream yields response chunks. Next returns io.EOF once the body is
// exhausted; a context error if the request was cancelled.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Generator starts a streamed generation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Stream, error)
}

// Client is an HTTP client for the Ollama API.
type Client struct {
	host string
	http *http.Client
}

// DefaultTimeout bounds a whole request when none is configured.
const DefaultTimeout = 120 * time.Second

// NewClient returns a client for host. A zero timeout means DefaultTimeout.
func NewClient(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		host: normalizeHost(host),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          16,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

func normalizeHost(host string) string {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return "http://localhost:11434"
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// Host returns the normalized base URL.
func (c *Client) Host() string { return c.host }

// Generate posts req to /api/generate and returns the streamed response.
func (c *Client) Generate(ctx context.Context, req Request) (Stream, error) {
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewBackend(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewBackend(fmt.Errorf("request failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewBackendStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &ndjsonStream{ctx: ctx, body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

type ndjsonStream struct {
	ctx  context.Context
	body io.ReadCloser
	dec  *json.Decoder
}

func (s *ndjsonStream) Next() (Chunk, error) {
	var chunk Chunk
	if err := s.dec.Decode(&chunk); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return Chunk{}, ctxErr
		}
		if stderrors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, errors.NewBackend(fmt.Errorf("decode chunk: %w", err))
	}
	if chunk.Error != "" {
		return Chunk{}, errors.NewBackend(stderrors.New(chunk.Error))
	}
	return chunk, nil
}

func (s *ndjsonStream) Close() error {
	return s.body.Close()
}

// Collect drains st and returns the concatenated response. A stream that ends
// without a done chunk yields UNEXPECTED_STREAM_END.
func Collect(st Stream) (string, error) {
	var (
		b        strings.Builder
		received int
	)
	for {
		chunk, err := st.Next()
		if err == io.EOF {
			return "", errors.NewUnexpectedStreamEnd(received)
		}
		if err != nil {
			return "", err
		}
		received++
		b.WriteString(chunk.Response)
		if chunk.Done {
			return b.String(), nil
		}
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, errors.NewBackend(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.NewBackend(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewBackendStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.NewBackend(fmt.Errorf("decode response: %w", err))
	}
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
