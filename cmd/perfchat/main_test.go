package main

import (
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSURLForSession(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://127.0.0.1:3000", want: "ws://127.0.0.1:3000/v1/chat/ws?session_id=s+1"},
		{base: "https://mu.local/", want: "wss://mu.local/v1/chat/ws?session_id=s+1"},
	}
	for _, tt := range tests {
		got, err := wsURLForSession(tt.base, "s 1")
		if err != nil {
			t.Fatalf("wsURLForSession(%q) error = %v", tt.base, err)
		}
		if got != tt.want {
			t.Fatalf("wsURLForSession(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
	if _, err := wsURLForSession("ftp://x", "s"); err == nil {
		t.Fatalf("wsURLForSession(ftp) error = nil, want error")
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags(flag.NewFlagSet("perfchat", flag.ContinueOnError), []string{"-turns", "3", "-texts", " a | |b "})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.turns != 3 || len(cfg.texts) != 2 || cfg.texts[1] != "b" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !strings.HasPrefix(cfg.sessionID, "perf-") {
		t.Fatalf("sessionID = %q, want perf- prefix", cfg.sessionID)
	}

	if _, err := parseFlags(flag.NewFlagSet("perfchat", flag.ContinueOnError), []string{"-turns", "0"}); err == nil {
		t.Fatalf("parseFlags(turns=0) error = nil, want error")
	}
}

func TestSummarize(t *testing.T) {
	r := summarize([]float64{40, 10, 30, 20}, 1)
	if r.Turns != 5 || r.Errors != 1 {
		t.Fatalf("report = %+v", r)
	}
	if r.P50MS != 20 || r.P95MS != 40 || r.MaxMS != 40 {
		t.Fatalf("report = %+v, want p50=20 p95=40 max=40", r)
	}
	if empty := summarize(nil, 2); empty.P50MS != 0 || empty.Turns != 2 {
		t.Fatalf("empty report = %+v", empty)
	}
}

func TestRunAgainstEchoServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var in wsRequest
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			out := wsReply{Reply: "echo: " + in.Message}
			if in.Message == "fail" {
				out = wsReply{Error: "Failed to get reply from model. Is Ollama running?", Code: "completion_failed"}
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	report, err := run(options{
		baseURL:     ts.URL,
		sessionID:   "perf-test",
		turns:       4,
		turnTimeout: 5 * time.Second,
		texts:       []string{"hello", "fail"},
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if report.Turns != 4 || report.Errors != 2 {
		t.Fatalf("report = %+v, want 4 turns with 2 errors", report)
	}
}
