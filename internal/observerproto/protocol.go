package observerproto

import (
	"github.com/google/uuid"

	"bonfire.gg/internal/render"
)

// Version is the observer protocol version (separate from the host WS protocol).
const Version = "0.1"

const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeSnapshot     = "SNAPSHOT"
	TypeMarkerUpsert = "MARKER_UPSERT"
	TypeMarkerRemove = "MARKER_REMOVE"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the world filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only receive markers of one world.
	World *uuid.UUID `json:"world,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	MarkerSetID     string `json:"marker_set_id"`
	MarkerSetLabel  string `json:"marker_set_label"`
	Markers         int    `json:"markers"`
}

// Server -> Client. Sent after every SUBSCRIBE.
type SnapshotMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Markers         []render.Marker `json:"markers"`
}

type MarkerUpsertMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Marker          render.Marker `json:"marker"`
}

type MarkerRemoveMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Set             string    `json:"set"`
	World           uuid.UUID `json:"world"`
	ID              string    `json:"id"`
}
