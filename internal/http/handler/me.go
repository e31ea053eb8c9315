package handler

import (
	"net/http"
	"time"

	"tasktimer/internal/auth"
	"tasktimer/internal/progress"
)

type MeHandler struct {
	Progress *progress.Service
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	stats, err := h.Progress.Stats(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": uid,
		"stats":   stats,
	})
}

func (h *MeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	stats, err := h.Progress.Stats(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *MeHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	list, err := h.Progress.Achievements(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// RebuildStats replays the completion log into the stats snapshot.
func (h *MeHandler) RebuildStats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	out, err := h.Progress.Rebuild(r.Context(), uid, time.Now())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if out.Unlocked == nil {
		out.Unlocked = []progress.Achievement{}
	}
	writeJSON(w, http.StatusOK, out)
}
