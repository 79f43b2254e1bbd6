package auction

import (
	"fmt"
	"time"

	"github.com/gavelhq/gavel/internal/catalog"
)

// Sale records an acquired player. SoldFor and SoldTo are derived facts
// about the sale; the catalog player itself is never mutated.
type Sale struct {
	Player  catalog.Player `json:"player"`
	SoldFor int            `json:"soldFor"`
	SoldTo  string         `json:"soldTo"`
	At      time.Time      `json:"at"`
}

// Ledger tracks each team's remaining purse and acquired players. It is
// the only component allowed to debit a purse. Not safe for concurrent
// use on its own; the owning Session serializes access.
type Ledger struct {
	teams  []catalog.Team
	purses map[string]int
	squads map[string][]Sale
}

// NewLedger opens a ledger with every team at its starting purse.
func NewLedger(teams []catalog.Team) *Ledger {
	l := &Ledger{teams: teams}
	l.Reset()
	return l
}

// Reset restores every purse to its catalog value and clears all squads.
func (l *Ledger) Reset() {
	l.purses = make(map[string]int, len(l.teams))
	l.squads = make(map[string][]Sale, len(l.teams))
	for _, t := range l.teams {
		l.purses[t.ID] = t.Purse
	}
}

// HasTeam reports whether the ledger tracks the given team.
func (l *Ledger) HasTeam(teamID string) bool {
	_, ok := l.purses[teamID]
	return ok
}

// CanAfford reports whether the team exists and its purse covers amount.
func (l *Ledger) CanAfford(teamID string, amount int) bool {
	purse, ok := l.purses[teamID]
	return ok && purse >= amount
}

// CommitSale debits the team's purse and appends the player to its
// squad. No partial effects: on any error the ledger is unchanged.
func (l *Ledger) CommitSale(teamID string, p catalog.Player, amount int, at time.Time) (Sale, error) {
	if !l.CanAfford(teamID, amount) {
		return Sale{}, fmt.Errorf("committing sale of %s to %s for %d: %w", p.ID, teamID, amount, ErrInvariantViolation)
	}
	sale := Sale{Player: p, SoldFor: amount, SoldTo: teamID, At: at}
	l.purses[teamID] -= amount
	l.squads[teamID] = append(l.squads[teamID], sale)
	return sale, nil
}

// Purse returns the team's remaining budget.
func (l *Ledger) Purse(teamID string) (int, bool) {
	p, ok := l.purses[teamID]
	return p, ok
}

// Squad returns the players the team has acquired, in purchase order.
func (l *Ledger) Squad(teamID string) []Sale {
	return l.squads[teamID]
}

// Teams returns the catalog teams the ledger was opened with.
func (l *Ledger) Teams() []catalog.Team {
	return l.teams
}
