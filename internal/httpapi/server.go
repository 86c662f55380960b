package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mugate/internal/chat"
	"github.com/ent0n29/mugate/internal/config"
	"github.com/ent0n29/mugate/internal/logging"
	"github.com/ent0n29/mugate/internal/observability"
	"github.com/ent0n29/mugate/internal/session"
)

const maxBodyBytes = 1 << 20

// Chatter answers one chat message.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request) (chat.Response, error)
}

// HistoryReader exposes the recent-turn window for inspection.
type HistoryReader interface {
	Window() int
	Get(sessionID string) []session.Turn
	LastActivity(sessionID string) (time.Time, bool)
}

type Server struct {
	cfg      config.Config
	chat     Chatter
	history  HistoryReader
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, chatter Chatter, history HistoryReader, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:     cfg,
		chat:    chatter,
		history: history,
		metrics: metrics,
		logger:  logging.Component(logger, "httpapi"),
		static:  newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/sessions/{id}/history", s.handleHistory)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/ui/settings", s.handleUISettings)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ready",
		"embed_provider":      s.cfg.EmbedProvider,
		"completion_provider": s.cfg.CompletionProvider,
		"vector_backend":      s.cfg.VectorBackend,
		"memory_collection":   s.cfg.MemoryCollection,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.SessionID = s.sessionIDOrDefault(req.SessionID)

	resp, err := s.chat.Handle(r.Context(), req)
	if err != nil {
		status, code, msg := chatError(err)
		respondError(w, status, code, msg)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type wsInbound struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type wsOutbound struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// handleChatWS answers each text frame in order on a single connection.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionIDOrDefault(r.URL.Query().Get("session_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.sessionEvent("ws_connected")
	defer s.sessionEvent("ws_disconnected")
	log := s.logger.With("session_id", sessionID)

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read ended", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		s.wsCount("inbound")

		var out wsOutbound
		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			out = wsOutbound{Error: "invalid JSON frame", Code: "invalid_request"}
		} else {
			id := sessionID
			if strings.TrimSpace(in.SessionID) != "" {
				id = strings.TrimSpace(in.SessionID)
			}
			resp, err := s.chat.Handle(r.Context(), chat.Request{Message: in.Message, SessionID: id})
			if err != nil {
				_, code, msg := chatError(err)
				out = wsOutbound{Error: msg, Code: code}
			} else {
				out = wsOutbound{Reply: resp.Reply}
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("websocket write failed", "err", err)
			return
		}
		s.wsCount("outbound")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	last, ok := s.history.LastActivity(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	turns := s.history.Get(id)
	if turns == nil {
		turns = []session.Turn{}
	}
	respondJSON(w, http.StatusOK, session.HistoryResponse{
		SessionID:      id,
		Window:         s.history.Window(),
		Turns:          turns,
		LastActivityAt: last,
	})
}

func (s *Server) sessionIDOrDefault(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.cfg.DefaultSessionID
	}
	if id == "" {
		id = "default-user"
	}
	return id
}

func (s *Server) sessionEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (s *Server) wsCount(direction string) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction).Inc()
	}
}

// chatError maps pipeline failures onto HTTP status, error code and message.
func chatError(err error) (int, string, string) {
	var ce *chat.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError, "internal", "internal error"
	}
	switch ce.Kind {
	case chat.KindValidation:
		return http.StatusBadRequest, "missing_message", ce.Message
	case chat.KindDependencyFatal:
		return http.StatusInternalServerError, "completion_failed", ce.Message
	default:
		return http.StatusInternalServerError, string(ce.Kind), ce.Message
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
