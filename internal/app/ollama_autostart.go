package app

import (
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ent0n29/mugate/internal/config"
)

// maybeAutoStartOllama launches `ollama serve` when a provider needs a local
// Ollama that is not listening yet. It returns nil when nothing was started.
func maybeAutoStartOllama(cfg config.Config) (*exec.Cmd, string) {
	if !cfg.OllamaAutoStart || !usesOllama(cfg) {
		return nil, ""
	}
	u, err := url.Parse(strings.TrimSpace(cfg.OllamaURL))
	if err != nil {
		return nil, ""
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		host = "127.0.0.1"
	}
	// Never spawn a server on behalf of a remote host.
	if host != "127.0.0.1" && host != "localhost" {
		return nil, ""
	}
	port := strings.TrimSpace(u.Port())
	if port == "" {
		port = "11434"
	}
	addr := net.JoinHostPort(host, port)
	if isTCPListening(addr, 220*time.Millisecond) {
		return nil, ""
	}

	bin := strings.TrimSpace(cfg.OllamaBin)
	if bin == "" {
		bin = "ollama"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, ""
	}

	cmd := exec.Command(bin, "serve")
	cmd.Env = append(os.Environ(), "OLLAMA_HOST="+addr)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, ""
	}

	// Model loading can take longer; this only waits for the listener.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if isTCPListening(addr, 160*time.Millisecond) {
			return cmd, addr
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd, addr
}

func usesOllama(cfg config.Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.EmbedProvider), "ollama") ||
		strings.EqualFold(strings.TrimSpace(cfg.CompletionProvider), "ollama")
}

func isTCPListening(addr string, timeout time.Duration) bool {
	if strings.TrimSpace(addr) == "" {
		return false
	}
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

func stopProcessBestEffort(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	select {
	case err := <-done:
		return ignoreExit(err)
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		return ignoreExit(<-done)
	}
}

// ignoreExit drops the errors a deliberately stopped child reports.
func ignoreExit(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
