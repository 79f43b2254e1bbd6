// Package catalog holds the immutable reference data a session is built
// from: the franchises that bid and the player pool they bid on.
package catalog

// Role is a player's cricketing role. Exactly one, never mutated.
type Role string

const (
	RoleBatsman      Role = "Batsman"
	RoleBowler       Role = "Bowler"
	RoleAllRounder   Role = "All-Rounder"
	RoleWicketKeeper Role = "Wicket Keeper"
)

// Category is an auction grouping: Marquee or one of the four roles.
type Category string

const CategoryMarquee Category = "Marquee"

// Roles lists every playing role in catalog order.
func Roles() []Role {
	return []Role{RoleBatsman, RoleBowler, RoleAllRounder, RoleWicketKeeper}
}

// Team is a bidding franchise. Purse is in Lakh and is the team's
// starting budget; the live remaining purse belongs to the ledger.
type Team struct {
	ID        string `yaml:"id" json:"id" validate:"required"`
	Name      string `yaml:"name" json:"name" validate:"required"`
	ShortName string `yaml:"short_name" json:"shortName" validate:"required"`
	Purse     int    `yaml:"purse" json:"purse" validate:"gt=0"`
}

// Stats carries descriptive career numbers. They never influence the
// auction flow.
type Stats struct {
	Matches    int     `yaml:"matches" json:"matches"`
	Runs       int     `yaml:"runs,omitempty" json:"runs,omitempty"`
	Wickets    int     `yaml:"wickets,omitempty" json:"wickets,omitempty"`
	Average    float64 `yaml:"average,omitempty" json:"average,omitempty"`
	StrikeRate float64 `yaml:"strike_rate,omitempty" json:"strikeRate,omitempty"`
}

// Player is an auctionable player. Marquee is orthogonal to Role: a
// marquee player keeps their role but is auctioned in the Marquee
// category.
type Player struct {
	ID        string `yaml:"id" json:"id" validate:"required"`
	Name      string `yaml:"name" json:"name" validate:"required"`
	Role      Role   `yaml:"role" json:"role" validate:"required,oneof=Batsman Bowler 'All-Rounder' 'Wicket Keeper'"`
	Marquee   bool   `yaml:"marquee,omitempty" json:"marquee,omitempty"`
	Country   string `yaml:"country" json:"country" validate:"required"`
	BasePrice int    `yaml:"base_price" json:"basePrice" validate:"gt=0"`
	Stats     Stats  `yaml:"stats" json:"stats"`
}

// EffectiveCategory is the category the player is auctioned in.
func (p Player) EffectiveCategory() Category {
	if p.Marquee {
		return CategoryMarquee
	}
	return Category(p.Role)
}

// Catalog is the fixed set of teams and players for a session. Order of
// the Players slice is the auction order within each category.
type Catalog struct {
	Teams   []Team   `yaml:"teams" json:"teams" validate:"min=2,dive"`
	Players []Player `yaml:"players" json:"players" validate:"min=1,dive"`
}

// Team returns the team with the given id, or nil.
func (c *Catalog) Team(id string) *Team {
	for i := range c.Teams {
		if c.Teams[i].ID == id {
			return &c.Teams[i]
		}
	}
	return nil
}

// Player returns the player with the given id, or nil.
func (c *Catalog) Player(id string) *Player {
	for i := range c.Players {
		if c.Players[i].ID == id {
			return &c.Players[i]
		}
	}
	return nil
}

// PlayersIn returns the players of a category in catalog order.
func (c *Catalog) PlayersIn(cat Category) []Player {
	var out []Player
	for _, p := range c.Players {
		if p.EffectiveCategory() == cat {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns every category with at least one player, ordered
// Marquee first and then roles in catalog order.
func (c *Catalog) Categories() []Category {
	cats := []Category{CategoryMarquee}
	for _, r := range Roles() {
		cats = append(cats, Category(r))
	}
	var out []Category
	for _, cat := range cats {
		if len(c.PlayersIn(cat)) > 0 {
			out = append(out, cat)
		}
	}
	return out
}
