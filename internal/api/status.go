package api

import "net/http"

func (h *handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, h.core.Snapshot())
}
