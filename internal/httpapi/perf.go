package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/mugate/internal/observability"
)

type perfLatencyResponse struct {
	observability.StageSnapshot
	// OverTarget lists stages whose p95 exceeds their target.
	OverTarget []string `json:"over_target"`
}

// handlePerfLatency reports the recent stage window. ?stage=a,b narrows the
// stages returned.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.SnapshotStages()

	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		want := make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			want[strings.TrimSpace(name)] = true
		}
		kept := snap.Stages[:0:0]
		for _, st := range snap.Stages {
			if want[st.Stage] {
				kept = append(kept, st)
			}
		}
		snap.Stages = kept
	}

	over := []string{}
	for _, st := range snap.Stages {
		if st.TargetP95MS > 0 && st.P95MS > st.TargetP95MS {
			over = append(over, st.Stage)
		}
	}
	respondJSON(w, http.StatusOK, perfLatencyResponse{StageSnapshot: snap, OverTarget: over})
}
