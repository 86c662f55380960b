package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	EmbedProvider      string            `json:"embed_provider"`
	CompletionProvider string            `json:"completion_provider"`
	VectorBackend      string            `json:"vector_backend"`
	Checks             []onboardingCheck `json:"checks"`
}

// probeTCP is swapped out in tests.
var probeTCP = func(addr string, timeout time.Duration) error {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return c.Close()
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	embed := normalizedMode(s.cfg.EmbedProvider, "ollama")
	completion := normalizedMode(s.cfg.CompletionProvider, "ollama")
	backend := normalizedMode(s.cfg.VectorBackend, "qdrant")

	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.modelChecks("embedding", "Embeddings", embed, s.cfg.EmbedModel)...)
	checks = append(checks, s.modelChecks("completion", "Completions", completion, s.cfg.CompletionModel)...)
	checks = append(checks, s.vectorChecks(backend)...)
	checks = append(checks, s.tlsChecks()...)

	if s.cfg.MemoryRedactPII {
		checks = append(checks, onboardingCheck{
			ID:     "memory_redaction",
			Status: "ok",
			Label:  "Memory redaction",
			Detail: "e-mail, phone and card numbers are masked before storage",
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		EmbedProvider:      embed,
		CompletionProvider: completion,
		VectorBackend:      backend,
		Checks:             checks,
	})
}

func normalizedMode(raw, fallback string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return fallback
	}
	return raw
}

func (s *Server) modelChecks(id, label, provider, model string) []onboardingCheck {
	switch provider {
	case "ollama":
		if err := probeURL(s.cfg.OllamaURL, "11434"); err != nil {
			return []onboardingCheck{{
				ID:     id,
				Status: "error",
				Label:  label + " (Ollama)",
				Detail: fmt.Sprintf("Ollama not reachable at %s", s.cfg.OllamaURL),
				Fix:    fmt.Sprintf("Start Ollama and run `ollama pull %s`.", model),
			}}
		}
		return []onboardingCheck{{ID: id, Status: "ok", Label: label + " (Ollama)", Detail: model}}
	case "openai":
		if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" && strings.TrimSpace(s.cfg.OpenAIBaseURL) == "" {
			return []onboardingCheck{{
				ID:     id,
				Status: "error",
				Label:  label + " (OpenAI-compatible)",
				Detail: "OPENAI_API_KEY is not set",
				Fix:    "Set OPENAI_API_KEY, or OPENAI_BASE_URL for a local OpenAI-compatible server.",
			}}
		}
		return []onboardingCheck{{ID: id, Status: "ok", Label: label + " (OpenAI-compatible)", Detail: model}}
	case "mock":
		return []onboardingCheck{{
			ID:     id,
			Status: "warn",
			Label:  label + " (mock)",
			Detail: "Output is synthetic.",
			Fix:    "Set the provider to ollama or openai.",
		}}
	default:
		return []onboardingCheck{{ID: id, Status: "error", Label: label, Detail: "unknown provider " + provider}}
	}
}

func (s *Server) vectorChecks(backend string) []onboardingCheck {
	switch backend {
	case "qdrant":
		if err := probeURL(s.cfg.QdrantURL, "6333"); err != nil {
			return []onboardingCheck{{
				ID:     "vector_store",
				Status: "warn",
				Label:  "Memory (Qdrant)",
				Detail: fmt.Sprintf("Qdrant not reachable at %s; replies will run without memories", s.cfg.QdrantURL),
				Fix:    "docker run -p 6333:6333 qdrant/qdrant",
			}}
		}
		return []onboardingCheck{{ID: "vector_store", Status: "ok", Label: "Memory (Qdrant)", Detail: s.cfg.MemoryCollection}}
	case "pgvector", "postgres":
		if strings.TrimSpace(s.cfg.DatabaseURL) == "" {
			return []onboardingCheck{{
				ID:     "vector_store",
				Status: "error",
				Label:  "Memory (pgvector)",
				Detail: "DATABASE_URL is empty",
			}}
		}
		return []onboardingCheck{{ID: "vector_store", Status: "ok", Label: "Memory (pgvector)", Detail: s.cfg.MemoryCollection}}
	case "chromem":
		if strings.TrimSpace(s.cfg.ChromemPath) == "" {
			return []onboardingCheck{{
				ID:     "vector_store",
				Status: "warn",
				Label:  "Memory (chromem)",
				Detail: "in-memory only",
				Fix:    "Set CHROMEM_PATH to persist memories across restarts.",
			}}
		}
		return []onboardingCheck{{ID: "vector_store", Status: "ok", Label: "Memory (chromem)", Detail: s.cfg.ChromemPath}}
	default:
		return []onboardingCheck{{ID: "vector_store", Status: "error", Label: "Memory", Detail: "unknown backend " + backend}}
	}
}

func (s *Server) tlsChecks() []onboardingCheck {
	if s.cfg.TLSCertFile == "" {
		return []onboardingCheck{{ID: "tls", Status: "warn", Label: "TLS", Detail: "serving plain HTTP"}}
	}
	for _, path := range []string{s.cfg.TLSCertFile, s.cfg.TLSKeyFile} {
		if _, err := os.Stat(path); err != nil {
			return []onboardingCheck{{ID: "tls", Status: "error", Label: "TLS", Detail: fmt.Sprintf("cannot read %s", path)}}
		}
	}
	return []onboardingCheck{{ID: "tls", Status: "ok", Label: "TLS", Detail: "HTTPS enabled"}}
}

func probeURL(raw, defaultPort string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return fmt.Errorf("host missing")
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return probeTCP(net.JoinHostPort(host, port), 250*time.Millisecond)
}
