package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type options struct {
	baseURL        string
	sessionID      string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type wsRequest struct {
	Message string `json:"message"`
}

type wsReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type latencyReport struct {
	Turns  int     `json:"turns"`
	Errors int     `json:"errors"`
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

var defaultMessages = []string{
	"Reply in three words: favourite editor?",
	"Reply in three words: what did I just ask?",
	"Reply in three words: best language for servers?",
	"Reply in three words: summarize our chat.",
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	report, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
	_ = json.NewEncoder(os.Stdout).Encode(report)
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "gateway base URL")
	fs.StringVar(&cfg.sessionID, "session-id", "", "session id for the replay (random when empty)")
	fs.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 120000, "timeout waiting for each reply in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "messages separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if strings.TrimSpace(cfg.sessionID) == "" {
		cfg.sessionID = "perf-" + uuid.NewString()
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultMessages...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty messages")
		}
	}
	return cfg, nil
}

func run(cfg options) (latencyReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	wsURL, err := wsURLForSession(cfg.baseURL, cfg.sessionID)
	if err != nil {
		return latencyReport{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return latencyReport{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Fprintf(os.Stderr, "perfchat: session=%s turns=%d\n", cfg.sessionID, cfg.turns)
	}

	samples := make([]float64, 0, cfg.turns)
	errorsSeen := 0
	for i := 0; i < cfg.turns; i++ {
		msg := cfg.texts[i%len(cfg.texts)]
		elapsed, reply, err := sendTurn(conn, msg, cfg.turnTimeout)
		if err != nil {
			return latencyReport{}, fmt.Errorf("turn %d: %w", i+1, err)
		}
		if reply.Error != "" {
			errorsSeen++
			if cfg.verbose {
				fmt.Fprintf(os.Stderr, "perfchat: turn %d error code=%s detail=%s\n", i+1, reply.Code, reply.Error)
			}
		} else {
			samples = append(samples, float64(elapsed.Microseconds())/1000)
			if cfg.verbose {
				fmt.Fprintf(os.Stderr, "perfchat: turn %d/%d %.0fms reply=%q\n", i+1, cfg.turns, float64(elapsed.Milliseconds()), reply.Reply)
			}
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	if cfg.verbose {
		if err := printServerLatency(ctx, cfg.baseURL); err != nil {
			fmt.Fprintf(os.Stderr, "perfchat: server latency unavailable: %v\n", err)
		}
	}
	return summarize(samples, errorsSeen), nil
}

func sendTurn(conn *websocket.Conn, message string, timeout time.Duration) (time.Duration, wsReply, error) {
	started := time.Now()
	_ = conn.SetWriteDeadline(started.Add(10 * time.Second))
	if err := conn.WriteJSON(wsRequest{Message: message}); err != nil {
		return 0, wsReply{}, fmt.Errorf("send: %w", err)
	}
	_ = conn.SetReadDeadline(started.Add(timeout))
	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		return 0, wsReply{}, fmt.Errorf("await reply: %w", err)
	}
	return time.Since(started), reply, nil
}

func printServerLatency(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Fprintf(os.Stderr, "perfchat: server stages %s\n", strings.TrimSpace(string(body)))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func summarize(samples []float64, errorsSeen int) latencyReport {
	report := latencyReport{Turns: len(samples) + errorsSeen, Errors: errorsSeen}
	if len(samples) == 0 {
		return report
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	report.P50MS = nearestRank(sorted, 0.50)
	report.P95MS = nearestRank(sorted, 0.95)
	report.MaxMS = sorted[len(sorted)-1]
	return report
}

func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
