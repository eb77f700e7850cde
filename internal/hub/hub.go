package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var ErrClientNotFound = errors.New("client not found")

// Hub fans messages out to websocket clients grouped by room. Direct and
// group messages share one queue and all writes to a client's Send channel
// happen on the Run goroutine, so every client sees messages in the order
// they were submitted. Group recipients are resolved at submit time.
type Hub struct {
	clients    map[string]*Client            // connectionID -> client
	groups     map[string]map[string]*Client // room -> connectionID -> client
	unregister chan *Client
	outbound   chan *outbound
	quit       chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type outbound struct {
	recipients []*Client
	data       []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		unregister: make(chan *Client),
		outbound:   make(chan *outbound, 512),
		quit:       make(chan struct{}),
		doneCh:     make(chan struct{}),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	defer close(h.doneCh)

	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for room, members := range h.groups {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.groups, room)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")

		case msg := <-h.outbound:
			h.mu.RLock()
			for _, client := range msg.recipients {
				// Skip clients unregistered since submit; their Send is closed.
				if h.clients[client.ID] == client {
					h.deliver(client, msg.data)
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.groups = make(map[string]map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// deliver must be called on the Run goroutine. A client whose buffer is
// full is dropped.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Msg("client send buffer full, disconnecting")
		go h.Unregister(client)
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.doneCh
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.doneCh:
	}
}

func (h *Hub) JoinGroup(connectionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return
	}
	if _, ok := h.groups[room]; !ok {
		h.groups[room] = make(map[string]*Client)
	}
	h.groups[room][connectionID] = client
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connectionID).Str(log.FieldRoom, room).Msg("client joined group")
}

func (h *Hub) LeaveGroup(connectionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.groups[room]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connectionID).Str(log.FieldRoom, room).Msg("client left group")
}

// SendToGroup queues message for every client in room except exclude.
func (h *Hub) SendToGroup(room string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.groups[room]))
	for id, client := range h.groups[room] {
		if id != exclude {
			recipients = append(recipients, client)
		}
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return nil
	}
	h.submit(&outbound{recipients: recipients, data: data})
	return nil
}

// SendTo queues message for a single client.
func (h *Hub) SendTo(connectionID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}

	h.submit(&outbound{recipients: []*Client{client}, data: data})
	return nil
}

func (h *Hub) submit(msg *outbound) {
	select {
	case h.outbound <- msg:
	case <-h.doneCh:
	}
}

func (h *Hub) GroupSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[room])
}

// GroupMembers returns the connection IDs subscribed to room.
func (h *Hub) GroupMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.groups[room]))
	for id := range h.groups[room] {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
