package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"linkhealth/domain/model"

	"github.com/gin-gonic/gin"
)

const subscriberBuffer = 16

// Hub maintains per-user subscribers listening for scan progress events.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[chan model.ScanEvent]struct{}
}

func NewScanHub() *Hub {
	return &Hub{users: make(map[string]map[chan model.ScanEvent]struct{})}
}

// Serve registers an SSE stream for the authenticated user (user_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	events, unsubscribe := h.Subscribe(userID)
	defer unsubscribe()

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// Subscribe returns a channel of the user's events and a func that releases it.
func (h *Hub) Subscribe(userID string) (<-chan model.ScanEvent, func()) {
	ch := make(chan model.ScanEvent, subscriberBuffer)
	h.mu.Lock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[chan model.ScanEvent]struct{})
	}
	h.users[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { h.removeSubscriber(userID, ch) }) }
}

func (h *Hub) removeSubscriber(userID string, ch chan model.ScanEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.users[userID]; subs != nil {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.users, userID)
		}
	}
}

// BroadcastScanEvent delivers evt to every subscriber of its user. Slow
// subscribers miss events rather than blocking the scan.
func (h *Hub) BroadcastScanEvent(evt model.ScanEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.users[evt.UserID] {
		select { // non-blocking
		case ch <- evt:
		default:
		}
	}
}
