package api

import (
	"net/http"
	"strconv"

	"github.com/user/roboterm/internal/console"
)

type channelOutputResponse struct {
	Channel int                   `json:"channel"`
	Lines   []console.OutputEntry `json:"lines"`
}

// getChannelOutput replays the tail of a channel's ring buffer so a
// client joining late can backfill its pane.
func (h *handler) getChannelOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	lines := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid lines parameter")
			return
		}
		lines = n
	}

	entries, err := h.core.Replay(id, lines)
	if err != nil {
		consoleError(w, err)
		return
	}
	if entries == nil {
		entries = []console.OutputEntry{}
	}
	jsonResponse(w, http.StatusOK, channelOutputResponse{Channel: id, Lines: entries})
}
