package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/user/roboterm/internal/console"
)

type errorBody struct {
	Error string `json:"error"`
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if data == nil || status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// consoleError maps a console error onto the HTTP status it deserves:
// unknown ids are 404, guard failures are 400, state conflicts are
// 409, anything else is a 500.
func consoleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, console.ErrUnknownSession),
		errors.Is(err, console.ErrUnknownTerminal),
		errors.Is(err, console.ErrUnknownChannel):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, console.ErrCredentialsRequired):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, console.ErrCredentialsLocked),
		errors.Is(err, console.ErrSessionBusy),
		errors.Is(err, console.ErrAlreadyConnected),
		errors.Is(err, console.ErrNotConnected):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		jsonError(w, http.StatusInternalServerError, err.Error())
	}
}
