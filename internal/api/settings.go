package api

import (
	"net/http"

	"github.com/user/roboterm/internal/remote"
)

type settingsResponse struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
	Locked   bool   `json:"locked"`
}

type settingsUpdateRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handler) getSettings(w http.ResponseWriter, _ *http.Request) {
	creds := h.core.Credentials()
	jsonResponse(w, http.StatusOK, settingsResponse{
		Host:     creds.Host,
		Port:     creds.Port,
		Username: creds.Username,
		Password: creds.Password,
		Locked:   h.core.CredentialsLocked(),
	})
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.core.SetCredentials(remote.Credentials{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		consoleError(w, err)
		return
	}

	h.getSettings(w, r)
}
