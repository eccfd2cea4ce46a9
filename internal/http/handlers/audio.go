package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moving-call-relay/internal/telephony"
)

// AudioHandler serves synthesized prompts parked for Twilio <Play>.
type AudioHandler struct {
	cache *telephony.AudioCache
}

func NewAudioHandler(cache *telephony.AudioCache) *AudioHandler {
	return &AudioHandler{cache: cache}
}

// Serve handles GET /audio/{clip}, where clip is "<id>.mp3".
func (h *AudioHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "clip"), ".mp3")
	if h.cache == nil || id == "" {
		http.NotFound(w, r)
		return
	}
	clip, ok := h.cache.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(clip)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip)
}
