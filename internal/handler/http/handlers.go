package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/estately/presence-relay/internal/domain/model"
)

type handler struct {
	presence PresenceReader
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Presence returns the same snapshot the onlineUsers broadcast carries.
func (h *handler) Presence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.OnlineUsersPayload{OnlineUsers: h.presence.Snapshot()})
}

func (h *handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
