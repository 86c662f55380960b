package httpapi

import "net/http"

type uiSettingsResponse struct {
	AssistantName    string `json:"assistant_name"`
	DefaultSessionID string `json:"default_session_id"`
	HistoryWindow    int    `json:"history_window"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	name := s.cfg.AssistantName
	if name == "" {
		name = "Mu"
	}
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		AssistantName:    name,
		DefaultSessionID: s.sessionIDOrDefault(""),
		HistoryWindow:    s.history.Window(),
	})
}
