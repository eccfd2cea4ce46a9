package telephony

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioCache holds synthesized clips briefly so a carrier that can only play
// audio by URL can fetch them back from this service.
type AudioCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	clips map[string]clip
}

type clip struct {
	audio   []byte
	expires time.Time
}

// NewAudioCache keeps synthesized clips for ttl (ten minutes when unset).
func NewAudioCache(ttl time.Duration) *AudioCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AudioCache{
		ttl:   ttl,
		now:   time.Now,
		clips: make(map[string]clip),
	}
}

// Put stores audio and returns its ID. Expired clips are evicted on each Put.
func (c *AudioCache) Put(audio []byte) string {
	id := uuid.NewString()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, existing := range c.clips {
		if now.After(existing.expires) {
			delete(c.clips, key)
		}
	}
	c.clips[id] = clip{audio: append([]byte(nil), audio...), expires: now.Add(c.ttl)}
	return id
}

// Get returns the clip for id when it exists and has not expired.
func (c *AudioCache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.clips[id]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.audio, true
}
