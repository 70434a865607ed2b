package domain

import (
	"errors"
	"time"
)

// ErrAgentNotFound is returned by record stores for an unknown agent id.
var ErrAgentNotFound = errors.New("agent not found")

// Transport names accepted for an agent's MCP endpoint.
const (
	TransportStreamHTTP = "stream-http"
	TransportSSE        = "sse"
)

// ValidTransports lists the accepted connect types.
var ValidTransports = []string{TransportStreamHTTP, TransportSSE}

// Relation kinds between a user and an agent.
const (
	RelationOwner    = "owner"
	RelationFavorite = "favorite"
)

// ValidTransport reports whether t is an accepted connect type.
func ValidTransport(t string) bool {
	for _, v := range ValidTransports {
		if v == t {
			return true
		}
	}
	return false
}

// Agent is a registered sub-agent record.
type Agent struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	URL           string    `json:"url,omitempty"`
	ConnectType   string    `json:"connectType,omitempty"`
	IsPublic      bool      `json:"isPublic"`
	FavoriteCount int64     `json:"favoriteCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Relation links a user to an agent they own or have favorited.
type Relation struct {
	UserID  int64  `json:"userId"`
	AgentID int64  `json:"agentId"`
	Kind    string `json:"relation"`
}

// Endpoint returns the agent's MCP endpoint, or false when no URL is recorded.
func (a Agent) Endpoint() (Endpoint, bool) {
	if a.URL == "" {
		return Endpoint{}, false
	}
	return Endpoint{URL: a.URL, Transport: a.ConnectType}, true
}

// Endpoint addresses a remote MCP server.
type Endpoint struct {
	URL       string `json:"url"`
	Transport string `json:"transport,omitempty"`
}

// String returns the endpoint URL.
func (e Endpoint) String() string { return e.URL }
