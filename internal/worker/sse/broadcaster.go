// Package sse streams dashboard completions to connected browsers as
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds how long Broadcast waits on one slow client
	// before dropping it.
	WriteTimeout = 2 * time.Second
	// KeepAlive is the interval between comment frames on idle streams.
	KeepAlive = 30 * time.Second

	queueSize = 16
)

// Client is one open event stream.
type Client struct {
	ID   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Done is closed when the client is removed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Broadcaster fans JSON frames out to every connected client. Frames for a
// client are written only by that client's handler goroutine.
type Broadcaster struct {
	clients      map[string]*Client
	mu           sync.RWMutex
	nextID       int
	writeTimeout time.Duration
	keepAlive    time.Duration
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:      make(map[string]*Client),
		writeTimeout: WriteTimeout,
		keepAlive:    KeepAlive,
	}
}

// AddClient registers a new stream.
func (b *Broadcaster) AddClient() *Client {
	b.mu.Lock()
	b.nextID++
	c := &Client{
		ID:   fmt.Sprintf("client-%d", b.nextID),
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	b.clients[c.ID] = c
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", c.ID).Int("totalClients", count).Msg("SSE client connected")
	return c
}

// RemoveClient unregisters c and closes its Done channel. Safe to call twice.
func (b *Broadcaster) RemoveClient(c *Client) {
	b.mu.Lock()
	_, ok := b.clients[c.ID]
	delete(b.clients, c.ID)
	count := len(b.clients)
	b.mu.Unlock()

	c.close()
	if ok {
		log.Debug().Str("clientId", c.ID).Int("totalClients", count).Msg("SSE client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client so their handlers return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for id, c := range b.clients {
		clients = append(clients, c)
		delete(b.clients, id)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Broadcast queues data, encoded as JSON, for every client. A client whose
// queue stays full for the write timeout is dropped.
func (b *Broadcaster) Broadcast(data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}
	frame := []byte(fmt.Sprintf("data: %s\n\n", payload))

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		b.enqueue(c, frame)
	}
}

func (b *Broadcaster) enqueue(c *Client, frame []byte) {
	select {
	case c.send <- frame:
		return
	case <-c.done:
		return
	default:
	}

	timer := time.NewTimer(b.writeTimeout)
	defer timer.Stop()
	select {
	case c.send <- frame:
	case <-c.done:
	case <-timer.C:
		log.Warn().Str("clientId", c.ID).Dur("timeout", b.writeTimeout).Msg("SSE client too slow, dropping")
		b.RemoveClient(c)
	}
}

// HandleSSE serves one event stream until the request ends or the client is
// removed.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := b.AddClient()
	defer b.RemoveClient(c)

	hello, _ := json.Marshal(map[string]string{"type": "connected", "clientId": c.ID})
	if _, err := fmt.Fprintf(w, "data: %s\n\n", hello); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			if _, err := w.Write(frame); err != nil {
				log.Debug().Err(err).Str("clientId", c.ID).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
