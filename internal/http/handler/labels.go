package handler

import (
	"encoding/json"
	"net/http"

	"tasktimer/internal/auth"
	"tasktimer/internal/task"
)

type LabelHandler struct {
	Svc *task.Service
}

type createLabelReq struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *LabelHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createLabelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	l, err := h.Svc.CreateLabel(r.Context(), uid, req.Name, req.Color)
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *LabelHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	labels, err := h.Svc.ListLabels(r.Context(), uid)
	if err != nil {
		taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (h *LabelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Svc.DeleteLabel(r.Context(), uid, id); err != nil {
		taskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
