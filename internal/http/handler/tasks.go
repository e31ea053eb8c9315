package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasktimer/internal/auth"
	"tasktimer/internal/task"
)

type TaskHandler struct {
	Svc           *task.Service
	ToggleTimeout time.Duration
}

type createTaskReq struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	DurationMinutes int     `json:"duration_minutes"`
	Priority        string  `json:"priority"`
	Deadline        *string `json:"deadline"` // RFC3339 optional
	Recurrence      string  `json:"recurrence"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	deadline, ok := parseTime(req.Deadline)
	if !ok {
		http.Error(w, "invalid deadline (RFC3339)", http.StatusBadRequest)
		return
	}

	t, err := h.Svc.Create(r.Context(), uid, task.Input{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Priority:        req.Priority,
		Deadline:        deadline,
		Recurrence:      req.Recurrence,
	})
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	f := task.Filter{
		Priority: q.Get("priority"),
		Query:    q.Get("q"),
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("completed"))) {
	case "true":
		v := true
		f.Completed = &v
	case "false":
		v := false
		f.Completed = &v
	}
	if v := strings.TrimSpace(q.Get("label")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid label", http.StatusBadRequest)
			return
		}
		f.LabelID = id
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}

	tasks, err := h.Svc.List(r.Context(), uid, f)
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.Svc.Get(r.Context(), uid, id)
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type patchTaskReq struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	DurationMinutes *int    `json:"duration_minutes"`
	Priority        *string `json:"priority"`
	Deadline        *string `json:"deadline"` // "" clears
	Recurrence      *string `json:"recurrence"`
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req patchTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	p := task.Patch{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Priority:        req.Priority,
		Recurrence:      req.Recurrence,
	}
	if req.Deadline != nil {
		deadline, ok := parseTime(req.Deadline)
		if !ok {
			http.Error(w, "invalid deadline (RFC3339)", http.StatusBadRequest)
			return
		}
		p.Deadline = deadline
		p.ClearDeadline = deadline == nil
	}

	t, err := h.Svc.Update(r.Context(), uid, id, p)
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Svc.Delete(r.Context(), uid, id); err != nil {
		taskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completionReq struct {
	Completed *bool `json:"completed"`
}

// SetCompletion flips the completion flag. The response carries the updated
// stats and any achievements unlocked by this change.
func (h *TaskHandler) SetCompletion(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req completionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Completed == nil {
		http.Error(w, "completed required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.ToggleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ToggleTimeout)
		defer cancel()
	}

	res, err := h.Svc.SetCompleted(ctx, uid, id, *req.Completed, idempotencyKey(r))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			http.Error(w, "completion timed out, nothing was changed", http.StatusGatewayTimeout)
			return
		}
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TaskHandler) AssignLabel(w http.ResponseWriter, r *http.Request) {
	h.labelLink(w, r, h.Svc.AssignLabel)
}

func (h *TaskHandler) UnassignLabel(w http.ResponseWriter, r *http.Request) {
	h.labelLink(w, r, h.Svc.UnassignLabel)
}

func (h *TaskHandler) labelLink(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, taskID, labelID uint64) error) {
	uid, _ := auth.UserIDFromContext(r.Context())
	taskID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	labelID, ok := urlID(r, "labelID")
	if !ok {
		http.Error(w, "invalid label id", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), uid, taskID, labelID); err != nil {
		taskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, task.ErrInvalidTask), errors.Is(err, task.ErrInvalidLabel):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, task.ErrToggleInFlight):
		http.Error(w, "completion already in progress", http.StatusConflict)
	case errors.Is(err, task.ErrIdempotencyConflict):
		http.Error(w, "idempotency key already used for another task", http.StatusConflict)
	case errors.Is(err, task.ErrLabelExists):
		http.Error(w, "label already exists", http.StatusConflict)
	default:
		log.Printf("[HTTP] task error: %v\n", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
