package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
)

// Hub tracks open clients per project.
type Hub struct {
	mu       sync.RWMutex
	projects map[string]map[string]*Client
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHub accepts upgrades from allowedOrigins; "*" or an empty list admits any origin.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	return &Hub{
		projects: make(map[string]map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

func (h *Hub) Add(cl *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.projects[cl.ProjectID]
	if !ok {
		clients = make(map[string]*Client)
		h.projects[cl.ProjectID] = clients
	}
	clients[cl.ID] = cl
}

func (h *Hub) Remove(cl *Client) {
	h.mu.Lock()
	if clients, ok := h.projects[cl.ProjectID]; ok {
		delete(clients, cl.ID)
		if len(clients) == 0 {
			delete(h.projects, cl.ProjectID)
		}
	}
	h.mu.Unlock()

	cl.Close()
}

func (h *Hub) Clients(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

func (h *Hub) DisconnectAll() {
	h.mu.Lock()
	projects := h.projects
	h.projects = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, clients := range projects {
		for _, cl := range clients {
			cl.Close()
		}
	}
}

func (h *Hub) snapshot(projectID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.projects[projectID]))
	for _, cl := range h.projects[projectID] {
		clients = append(clients, cl)
	}
	return clients
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
