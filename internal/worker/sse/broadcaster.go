// Package sse streams pipeline progress to browsers and CLIs as
// Server-Sent Events.
package sse

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single write so a stale client cannot hold up a
	// broadcast.
	WriteTimeout = 2 * time.Second
	// KeepAlive is how often an idle stream gets a comment line.
	KeepAlive = 15 * time.Second
)

// ErrStreamingUnsupported is returned for writers that cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Client is one connected event stream.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	// writes are serialized per client
	mu   sync.Mutex
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.Writer.Write(msg); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// Broadcaster fans events out to every connected client.
type Broadcaster struct {
	clients map[string]*Client
	closed  chan struct{}
	mu      sync.RWMutex
	nextID  int
	once    sync.Once
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
		closed:  make(chan struct{}),
	}
}

// AddClient registers w as an event stream.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:      fmt.Sprintf("client-%d", b.nextID),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[client.ID] = client
	n := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", client.ID).Int("totalClients", n).Msg("SSE client connected")
	return client, nil
}

// RemoveClient unregisters client and closes its Done channel. Removing an
// unknown client only closes Done.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	n := len(b.clients)
	b.mu.Unlock()

	client.close()
	log.Debug().Str("clientId", client.ID).Int("totalClients", n).Msg("SSE client disconnected")
}

// Broadcast sends data as an unnamed event.
func (b *Broadcaster) Broadcast(data any) {
	b.BroadcastEvent("", data)
}

// BroadcastEvent sends data as a JSON event named event. An empty name
// sends a plain "message" event.
func (b *Broadcaster) BroadcastEvent(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal SSE data")
		return
	}
	msg := formatEvent(event, payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	dead := make(chan *Client, len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		select {
		case <-c.Done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if !b.writeWithTimeout(c, msg) {
				dead <- c
			}
		}(c)
	}
	wg.Wait()
	close(dead)

	for c := range dead {
		b.RemoveClient(c)
	}
}

// writeWithTimeout reports whether the client is still usable.
func (b *Broadcaster) writeWithTimeout(c *Client, msg []byte) bool {
	done := make(chan error, 1)
	go func() { done <- c.write(msg) }()

	timer := time.NewTimer(WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().Err(err).Str("clientId", c.ID).Msg("SSE write failed, dropping client")
			return false
		}
		return true
	case <-timer.C:
		log.Warn().Str("clientId", c.ID).Dur("timeout", WriteTimeout).Msg("SSE write timed out, dropping client")
		return false
	case <-c.Done:
		return true
	}
}

func formatEvent(event string, payload []byte) []byte {
	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client; open HandleSSE calls return.
func (b *Broadcaster) Close() {
	b.once.Do(func() { close(b.closed) })

	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*Client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// HandleSSE serves one event stream until the request ends or the
// broadcaster closes.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	select {
	case <-b.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	hello, _ := json.Marshal(map[string]string{"clientId": client.ID})
	if err := client.write(formatEvent("connected", hello)); err != nil {
		return
	}

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-b.closed:
			return
		case <-ticker.C:
			if err := client.write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		}
	}
}
