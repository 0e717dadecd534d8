package api

import "net/http"

type runCommandRequest struct {
	Command string `json:"command"`
}

func (h *handler) runTerminal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid terminal id")
		return
	}
	var req runCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.core.RunLocal(id, req.Command); err != nil {
		consoleError(w, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, nil)
}
