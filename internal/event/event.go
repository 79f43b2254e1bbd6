package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	RoomCreated Type = "room.created"
	RoomJoined  Type = "room.joined"
	RoomLeft    Type = "room.left"
	RoomStarted Type = "room.started"

	TeamSelected      Type = "session.team_selected"
	CategoryStarted   Type = "session.category_started"
	CategoryCompleted Type = "session.category_completed"
	SessionReset      Type = "session.reset"

	LotOpened    Type = "lot.opened"
	LotBidPlaced Type = "lot.bid_placed"
	LotSold      Type = "lot.sold"
	LotUnsold    Type = "lot.unsold"
)

// Event represents a single domain event. AggregateID is the room the
// auction session belongs to.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RoomCreatedData is the payload for RoomCreated events.
type RoomCreatedData struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// RoomJoinedData is the payload for RoomJoined and RoomLeft events.
// TeamID is empty on RoomLeft.
type RoomJoinedData struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id,omitempty"`
}

// TeamSelectedData is the payload for TeamSelected events.
type TeamSelectedData struct {
	TeamID string `json:"team_id"`
}

// CategoryData is the payload for CategoryStarted/CategoryCompleted.
type CategoryData struct {
	Category string `json:"category"`
}

// LotOpenedData is the payload for LotOpened events.
type LotOpenedData struct {
	PlayerID  string `json:"player_id"`
	Category  string `json:"category"`
	BasePrice int    `json:"base_price"`
}

// BidPlacedData is the payload for LotBidPlaced events.
type BidPlacedData struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Amount   int    `json:"amount"`
}

// LotResolvedData is the payload for LotSold and LotUnsold events.
// SoldTo and SoldFor are only set on LotSold.
type LotResolvedData struct {
	PlayerID string `json:"player_id"`
	Category string `json:"category"`
	SoldTo   string `json:"sold_to,omitempty"`
	SoldFor  int    `json:"sold_for,omitempty"`
}
