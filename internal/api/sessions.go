package api

import (
	"net/http"
	"strconv"
)

type sendCommandRequest struct {
	Text string `json:"text"`
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *handler) connectSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.core.ConnectSession(id); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, nil)
}

func (h *handler) disconnectSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.core.DisconnectSession(id); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, nil)
}

func (h *handler) toggleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.core.ToggleSession(id); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, nil)
}

func (h *handler) interruptSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.core.SubmitInterrupt(id); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, nil)
}

func (h *handler) sendCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req sendCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.core.SubmitCommand(id, req.Text); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, nil)
}
