package protocol

import "github.com/google/uuid"

// Request is one host call. Which fields are meaningful depends on Type; the
// embedded request schema enforces the required ones.
type Request struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`

	Actor    uuid.UUID `json:"actor,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Operator bool      `json:"operator,omitempty"`

	// Cell the actor is standing in (or acting on).
	World uuid.UUID `json:"world,omitempty"`
	X     int32     `json:"x,omitempty"`
	Z     int32     `json:"z,omitempty"`

	// JOIN
	Name string `json:"name,omitempty"`

	// SET_RULE
	Rule  string `json:"rule,omitempty"`
	Value string `json:"value,omitempty"`

	// ADD_TRUST / REMOVE_TRUST / ADMIN_SET_OWNER / ADMIN_REMOVE_ALL
	Target string `json:"target,omitempty"`
	Trust  string `json:"trust,omitempty"`

	Check *CheckReq `json:"check,omitempty"`
}

// Cell addresses one grid cell on the wire.
type Cell struct {
	World uuid.UUID `json:"world"`
	X     int32     `json:"x"`
	Z     int32     `json:"z"`
}

type ActorRef struct {
	ID   uuid.UUID `json:"id"`
	Mode string    `json:"mode,omitempty"`
}

type EntityRef struct {
	Type     string    `json:"type"`
	Owner    uuid.UUID `json:"owner,omitempty"`
	Tameable bool      `json:"tameable,omitempty"`
}

type Move struct {
	From Cell `json:"from"`
	To   Cell `json:"to"`
}

// CheckReq asks the protection evaluator for one decision.
type CheckReq struct {
	Kind string `json:"kind"`

	Cell *Cell `json:"cell,omitempty"`
	From *Cell `json:"from,omitempty"`
	To   *Cell `json:"to,omitempty"`

	HoldingBlock bool `json:"holding_block,omitempty"`
	Fragile      bool `json:"fragile,omitempty"`

	Entity       *EntityRef `json:"entity,omitempty"`
	VictimPlayer *ActorRef  `json:"victim_player,omitempty"`
	Damager      *ActorRef  `json:"damager,omitempty"`

	Arm   *Cell  `json:"arm,omitempty"`
	Moves []Move `json:"moves,omitempty"`

	Source  string    `json:"source,omitempty"`
	Igniter *ActorRef `json:"igniter,omitempty"`
	Target  *ActorRef `json:"target,omitempty"`
	Cells   []Cell    `json:"cells,omitempty"`
}

// Response answers exactly one Request, echoing its ReqID.
type Response struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`

	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	ClaimID int64 `json:"claim_id,omitempty"`
	Count   int   `json:"count,omitempty"`

	Allowed *bool      `json:"allowed,omitempty"`
	Cells   []Cell     `json:"cells,omitempty"`
	Claim   *ClaimInfo `json:"claim,omitempty"`
	View    *View      `json:"view,omitempty"`
}

type Rules struct {
	AllowBlockBreak     bool   `json:"allow_block_break"`
	AllowBlockInteract  bool   `json:"allow_block_interact"`
	AllowEntityInteract string `json:"allow_entity_interact"`
}

type ClaimInfo struct {
	ID            int64       `json:"id"`
	Owner         uuid.UUID   `json:"owner"`
	OwnerName     string      `json:"owner_name"`
	World         uuid.UUID   `json:"world"`
	Chunks        int         `json:"chunks"`
	Rules         Rules       `json:"rules"`
	TrustedAlways []uuid.UUID `json:"trusted_always,omitempty"`
	TrustedOnline []uuid.UUID `json:"trusted_online,omitempty"`
}

// View carries client-side state hints and command visibility for an actor
// standing in a cell.
type View struct {
	Bypass        bool `json:"bypass"`
	Adventure     bool `json:"adventure"`
	NoBlockReach  bool `json:"no_block_reach"`
	NoEntityReach bool `json:"no_entity_reach"`
	NoCollide     bool `json:"no_collide"`
	DropAggro     bool `json:"drop_aggro"`

	CanClaim        bool `json:"can_claim"`
	IsOwner         bool `json:"is_owner"`
	CanRemovePlayer bool `json:"can_remove_player"`

	OwnerName string `json:"owner_name,omitempty"`
}
