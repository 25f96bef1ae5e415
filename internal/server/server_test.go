package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FranksOps/scout/internal/discovery"
	"github.com/FranksOps/scout/internal/event"
	"github.com/FranksOps/scout/internal/fetch"
	"github.com/FranksOps/scout/internal/fingerprint"
	"github.com/FranksOps/scout/internal/report"
	"github.com/FranksOps/scout/internal/run"
	"github.com/FranksOps/scout/pkg/useragent"
)

type emptyProvider struct{}

func (emptyProvider) Name() string { return "empty" }
func (emptyProvider) Discover(ctx context.Context, topic string) ([]discovery.Candidate, error) {
	return nil, nil
}

// slowProvider stalls discovery until the run is cancelled, keeping the run
// alive for observer-slot tests.
type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }
func (slowProvider) Discover(ctx context.Context, topic string) ([]discovery.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, nil
	}
}

// newTestServer builds a server whose runs complete quickly in draft mode
// (no candidates, no model).
func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWith(t, emptyProvider{})
}

func newTestServerWith(t *testing.T, provider discovery.Provider) *httptest.Server {
	t.Helper()
	fetcher, err := fetch.NewFetcher(fetch.Config{
		Timeout:     time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
	}, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	o := &run.Orchestrator{
		Provider:  provider,
		Fetcher:   fetcher,
		Generator: &report.Generator{},
		Config:    run.Config{StreamChunks: true},
	}
	srv := New(run.NewManager(o), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func startRun(t *testing.T, ts *httptest.Server, topic string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"topic": topic})
	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post run: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out.ID
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestStartRunAndStreamEvents(t *testing.T) {
	ts := newTestServer(t)
	id := startRun(t, ts, "test topic")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/runs/"+id+"/events"), nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	var events []event.Event
	deadline := time.Now().Add(10 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read event: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) == 0 {
		t.Fatal("no events received")
	}
	if events[0].Kind != event.KindRunStarted {
		t.Errorf("first frame must be run_started, got %s", events[0].Kind)
	}
	last := events[len(events)-1]
	if !last.Terminal() && last.Kind != event.KindAdvisory {
		t.Errorf("stream must end at the terminal event, got %s", last.Kind)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("sequence regressed at frame %d", i)
		}
	}
}

func TestSecondObserverRejected(t *testing.T) {
	ts := newTestServerWith(t, slowProvider{})
	id := startRun(t, ts, "topic")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/runs/"+id+"/events"), nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/runs/"+id+"/events"), nil)
	if err == nil {
		t.Fatal("second observer must be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for second observer, got %+v", resp)
	}
}

func TestUnknownRun(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(ts, "/runs/00000000-0000-0000-0000-000000000000/events"), nil)
	if err == nil {
		t.Fatal("unknown run must be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %+v", resp)
	}
}

func TestStartRunValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/runs", "application/json", strings.NewReader(`{"topic":""}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty topic must be rejected, got %d", resp.StatusCode)
	}
}

func TestCancelRun(t *testing.T) {
	ts := newTestServer(t)
	id := startRun(t, ts, "topic")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/runs/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()
	// The run may already have finished and been released; both outcomes are
	// valid responses to a cancel.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected cancel status %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "ok" {
		t.Errorf("unexpected health body: %v %v", body, err)
	}
}
