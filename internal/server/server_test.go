package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	client := llm.NewClientWithProvider(nil, llm.Config{}, zap.NewNop())
	srv := NewServer(schema.MustLoad(), client, *metadata.DefaultConfig(), zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestServer_Healthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_CreateSession(t *testing.T) {
	_, ts := newTestServer(t)

	body := bytes.NewBufferString(`{"missing_fields":["experimenter"]}`)
	resp, err := http.Post(ts.URL+"/sessions", "application/json", body)
	if err != nil {
		t.Fatalf("POST /sessions failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Error("Expected a session id")
	}
	if !strings.Contains(created.Prompt, "experimenter") {
		t.Errorf("Expected opening prompt to ask for experimenter, got %q", created.Prompt)
	}
}

func TestServer_WebSocketUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail for an unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %+v", resp)
	}
}

func TestServer_WebSocketTurnFlow(t *testing.T) {
	srv, ts := newTestServer(t)

	body := bytes.NewBufferString(`{"missing_fields":["experimenter"]}`)
	resp, err := http.Post(ts.URL+"/sessions", "application/json", body)
	if err != nil {
		t.Fatalf("POST /sessions failed: %v", err)
	}
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	_ = resp.Body.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(turnMessage{Text: "Jane Doe"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var r1 turnReply
	if err := conn.ReadJSON(&r1); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if r1.Done {
		t.Error("Expected the session to stay open awaiting confirmation")
	}

	if err := conn.WriteJSON(turnMessage{Text: "yes"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var r2 turnReply
	if err := conn.ReadJSON(&r2); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if r2.Framing != "confirmed" {
		t.Errorf("Expected confirmed framing, got %q", r2.Framing)
	}
	if len(r2.Applied) != 1 || r2.Applied[0] != "experimenter" {
		t.Errorf("Expected experimenter applied, got %v", r2.Applied)
	}
	if !r2.Done {
		t.Error("Expected done after the last field was confirmed")
	}

	machine, ok := srv.Session(created.SessionID)
	if !ok {
		t.Fatal("Expected session to be retrievable")
	}
	if _, ok := machine.Snapshot()["experimenter"]; !ok {
		t.Error("Expected experimenter in the session snapshot")
	}
}
