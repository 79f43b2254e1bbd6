package auction

import (
	"time"

	"github.com/gavelhq/gavel/internal/catalog"
)

// Phase is the session's visible phase.
type Phase string

const (
	PhaseSelection  Phase = "SELECTION"
	PhasePool       Phase = "POOL"
	PhaseAuction    Phase = "AUCTION"
	PhaseTransition Phase = "TRANSITION"
	PhaseSquads     Phase = "SQUADS"
)

// TeamState is a team's live standing: remaining purse and squad.
type TeamState struct {
	catalog.Team
	RemainingPurse int    `json:"remainingPurse"`
	Squad          []Sale `json:"squad"`
}

// Snapshot is a read-only copy of the whole session state, safe to hand
// to observers and serialize onto the fan-out channel.
type Snapshot struct {
	RoomID string `json:"roomId"`
	// Phase reports SQUADS while the squads overlay is open; the
	// underlying phase keeps progressing and is restored on close.
	Phase      Phase  `json:"phase"`
	Generation uint64 `json:"generation"`

	HumanTeams     map[string]string  `json:"humanTeams"`
	ActiveCategory catalog.Category   `json:"activeCategory,omitempty"`
	CategoryOrder  []catalog.Category `json:"categoryOrder"`

	Lot       *Lot `json:"lot,omitempty"`
	NextLegal int  `json:"nextLegal,omitempty"`

	Teams       []TeamState      `json:"teams"`
	Resolutions []Resolution     `json:"resolutions"`
	Unsold      []catalog.Player `json:"unsold"`

	LastAuctionResult     Status           `json:"lastAuctionResult,omitempty"`
	LastSoldCategory      catalog.Category `json:"lastSoldCategory,omitempty"`
	LastSoldAt            *time.Time       `json:"lastSoldAt,omitempty"`
	LastCompletedCategory catalog.Category `json:"lastCompletedCategory,omitempty"`
	LastCompletedAt       *time.Time       `json:"lastCompletedAt,omitempty"`

	Completed bool `json:"completed"`
}

// IsHuman reports whether the team is controlled by a human.
func (s Snapshot) IsHuman(teamID string) bool {
	_, ok := s.HumanTeams[teamID]
	return ok
}

// Team returns the live standing for a team id, or nil.
func (s Snapshot) Team(teamID string) *TeamState {
	for i := range s.Teams {
		if s.Teams[i].ID == teamID {
			return &s.Teams[i]
		}
	}
	return nil
}
