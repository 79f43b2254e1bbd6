package catalog_test

import (
	"strings"
	"testing"

	"github.com/gavelhq/gavel/internal/catalog"
)

func TestLoad_BundledCatalog(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(c.Teams) != 8 {
		t.Errorf("teams = %d, want 8", len(c.Teams))
	}
	if len(c.Players) != 30 {
		t.Errorf("players = %d, want 30", len(c.Players))
	}
	for _, team := range c.Teams {
		if team.Purse != 10000 {
			t.Errorf("team %s purse = %d, want 10000", team.ID, team.Purse)
		}
	}

	marquee := c.PlayersIn(catalog.CategoryMarquee)
	if len(marquee) != 10 {
		t.Errorf("marquee players = %d, want 10", len(marquee))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: "parsing catalog",
		},
		{
			name: "single team",
			yaml: `
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK, purse: 100}
players:
  - {id: p1, name: A, role: Batsman, country: India, base_price: 10}
`,
			wantErr: "validating catalog",
		},
		{
			name: "bad role",
			yaml: `
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK, purse: 100}
  - {id: mi, name: Mumbai Indians, short_name: MI, purse: 100}
players:
  - {id: p1, name: A, role: Coach, country: India, base_price: 10}
`,
			wantErr: "validating catalog",
		},
		{
			name: "zero base price",
			yaml: `
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK, purse: 100}
  - {id: mi, name: Mumbai Indians, short_name: MI, purse: 100}
players:
  - {id: p1, name: A, role: Batsman, country: India, base_price: 0}
`,
			wantErr: "validating catalog",
		},
		{
			name: "duplicate player id",
			yaml: `
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK, purse: 100}
  - {id: mi, name: Mumbai Indians, short_name: MI, purse: 100}
players:
  - {id: p1, name: A, role: Batsman, country: India, base_price: 10}
  - {id: p1, name: B, role: Bowler, country: India, base_price: 10}
`,
			wantErr: "duplicate player id",
		},
		{
			name: "duplicate team id",
			yaml: `
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK, purse: 100}
  - {id: csk, name: Chennai Copy, short_name: CC, purse: 100}
players:
  - {id: p1, name: A, role: Batsman, country: India, base_price: 10}
`,
			wantErr: "duplicate team id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want contains %q", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveCategory(t *testing.T) {
	p := catalog.Player{Role: catalog.RoleBowler}
	if got := p.EffectiveCategory(); got != catalog.Category(catalog.RoleBowler) {
		t.Errorf("EffectiveCategory = %s, want Bowler", got)
	}
	p.Marquee = true
	if got := p.EffectiveCategory(); got != catalog.CategoryMarquee {
		t.Errorf("EffectiveCategory = %s, want Marquee", got)
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Team(c.Teams[0].ID) == nil {
		t.Error("Team lookup failed for a known id")
	}
	if c.Team("nope") != nil {
		t.Error("Team returned non-nil for unknown id")
	}
	if c.Player(c.Players[0].ID) == nil {
		t.Error("Player lookup failed for a known id")
	}
	if c.Player("nope") != nil {
		t.Error("Player returned non-nil for unknown id")
	}

	cats := c.Categories()
	if len(cats) == 0 || cats[0] != catalog.CategoryMarquee {
		t.Errorf("Categories = %v, want Marquee first", cats)
	}
}
