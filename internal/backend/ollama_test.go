package backend

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hpungsan/fern/internal/errors"
)

func ndjsonServer(t *testing.T, lines []string, check func(Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
}

func TestGenerate_Streams(t *testing.T) {
	var got Request
	srv := ndjsonServer(t, []string{
		`{"response":"Hel","done":false}`,
		`{"response":"lo","done":false}`,
		`{"response":"","done":true,"total_duration":12}`,
	}, func(r Request) { got = r })
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	st, err := c.Generate(context.Background(), Request{
		Model:   "m",
		System:  "sys",
		Prompt:  "pre",
		Suffix:  "suf",
		Options: Options{Temperature: 0.5, TopP: 0.1, NumPredict: 10, NumCtx: 2048},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer st.Close()

	text, err := Collect(st)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if text != "Hello" {
		t.Errorf("Collect() = %q, want Hello", text)
	}

	if !got.Stream {
		t.Error("request Stream = false, want true")
	}
	if got.Prompt != "pre" || got.Suffix != "suf" || got.System != "sys" {
		t.Errorf("request = %+v", got)
	}
	if got.Options.NumPredict != 10 || got.Options.NumCtx != 2048 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestGenerate_UnexpectedEnd(t *testing.T) {
	srv := ndjsonServer(t, []string{`{"response":"partial","done":false}`}, nil)
	defer srv.Close()

	st, err := NewClient(srv.URL, 0).Generate(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer st.Close()

	_, err = Collect(st)
	if !errors.Is(err, errors.ErrUnexpectedStreamEnd) {
		t.Fatalf("Collect() error = %v, want UNEXPECTED_STREAM_END", err)
	}
	if !errors.IsBackendFailure(err) {
		t.Error("IsBackendFailure() = false, want true")
	}
}

func TestGenerate_ErrorChunk(t *testing.T) {
	srv := ndjsonServer(t, []string{`{"error":"model not loaded"}`}, nil)
	defer srv.Close()

	st, err := NewClient(srv.URL, 0).Generate(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer st.Close()

	if _, err := Collect(st); !errors.Is(err, errors.ErrBackend) {
		t.Errorf("Collect() error = %v, want BACKEND_ERROR", err)
	}
}

func TestGenerate_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Generate(context.Background(), Request{Model: "x"})
	if !errors.Is(err, errors.ErrBackend) {
		t.Fatalf("Generate() error = %v, want BACKEND_ERROR", err)
	}
	var fe *errors.FernError
	if !stderrors.As(err, &fe) || fe.Details["upstream_status"] != http.StatusNotFound {
		t.Errorf("Details = %v, want upstream_status 404", fe.Details)
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	st, err := NewClient(srv.URL, 0).Generate(ctx, Request{Model: "m"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer st.Close()

	if _, err := st.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	<-started
	cancel()

	_, err = st.Next()
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Next() after cancel error = %v, want context.Canceled", err)
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, 0).Generate(context.Background(), Request{Model: "m"})
	if !errors.Is(err, errors.ErrBackend) {
		t.Errorf("Generate() error = %v, want BACKEND_ERROR", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"models":[{"name":"llama3:8b"},{"name":"qwen2.5-coder:7b"}]}`)
	}))
	defer srv.Close()

	names, err := NewClient(srv.URL, 0).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(names) != 2 || names[0] != "llama3:8b" {
		t.Errorf("ListModels() = %v", names)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "http://localhost:11434"},
		{"localhost:11434", "http://localhost:11434"},
		{"https://ollama.example.com/", "https://ollama.example.com"},
	}
	for _, tt := range tests {
		if got := normalizeHost(tt.in); got != tt.want {
			t.Errorf("normalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
