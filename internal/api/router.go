// Package api exposes the console over REST. Handlers translate HTTP
// requests into console operations and console errors back into
// status codes; everything stateful lives behind the Core interface.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/roboterm/internal/console"
	"github.com/user/roboterm/internal/remote"
)

// Core is the slice of the console the REST surface needs.
type Core interface {
	ConnectSession(id int) error
	DisconnectSession(id int) error
	ToggleSession(id int) error
	SubmitCommand(id int, text string) error
	SubmitInterrupt(id int) error
	RunLocal(id int, commandLine string) error
	SetCredentials(creds remote.Credentials) error
	Credentials() remote.Credentials
	CredentialsLocked() bool
	Snapshot() console.Status
	Replay(channel, lines int) ([]console.OutputEntry, error)
}

var _ Core = (*console.Console)(nil)

type handler struct {
	core Core
}

func NewRouter(core Core, token string) http.Handler {
	h := &handler{core: core}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.getStatus)
	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("PUT /api/settings", h.updateSettings)

	mux.HandleFunc("POST /api/sessions/{id}/connect", h.connectSession)
	mux.HandleFunc("POST /api/sessions/{id}/disconnect", h.disconnectSession)
	mux.HandleFunc("POST /api/sessions/{id}/toggle", h.toggleSession)
	mux.HandleFunc("POST /api/sessions/{id}/interrupt", h.interruptSession)
	mux.HandleFunc("POST /api/sessions/{id}/command", h.sendCommand)

	mux.HandleFunc("POST /api/terminals/{id}/run", h.runTerminal)

	mux.HandleFunc("GET /api/channels/{id}/output", h.getChannelOutput)

	return authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
