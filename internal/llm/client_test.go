package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamChat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hello"}}]}

data: {"choices":[{"delta":{"content":" world"}}]}

data: {"choices":[{"delta":{"content":"!"}}]}

data: [DONE]

`)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, Model: "m", APIKey: "key"})
	stream, err := c.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var parts []string
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		parts = append(parts, frag)
	}

	if got := strings.Join(parts, ""); got != "Hello world!" {
		t.Errorf("expected assembled 'Hello world!', got %q", got)
	}

	// After EOF further Recv calls keep returning EOF.
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("expected io.EOF on drained stream, got %v", err)
	}
}

func TestStreamChat_MidStreamGarbage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}

data: {not json

`)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, Model: "m"})
	stream, err := c.StreamChat(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	frag, err := stream.Recv()
	if err != nil || frag != "partial" {
		t.Fatalf("expected first fragment, got %q, %v", frag, err)
	}

	if _, err := stream.Recv(); err == nil || err == io.EOF {
		t.Errorf("expected decode error for malformed chunk, got %v", err)
	}
}

func TestStreamChat_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, Model: "m"})
	if _, err := c.StreamChat(context.Background(), nil); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"full answer"}}]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, Model: "m"})
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "q"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "full answer" {
		t.Errorf("expected 'full answer', got %q", got)
	}
}

func TestClient_Misconfigured(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing endpoint/model")
	}
}
