package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasktimer/internal/analytics"
	"tasktimer/internal/auth"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"
)

type AnalyticsHandler struct {
	Tasks    *task.Service
	Progress *progress.Service
	Now      func() time.Time
}

func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	weeks := analytics.DefaultWeeks
	if v := strings.TrimSpace(r.URL.Query().Get("weeks")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > analytics.MaxWeeks {
			http.Error(w, "invalid weeks", http.StatusBadRequest)
			return
		}
		weeks = n
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}

	tasks, err := h.Tasks.All(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	events, err := h.Progress.Events(r.Context(), uid, analytics.WindowStart(now, weeks))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, analytics.Summarize(tasks, events, now, weeks))
}
