package auction_test

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gavelhq/gavel/internal/auction"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
)

var (
	testTP = noop.NewTracerProvider()
	t0     = time.Date(2025, 4, 12, 19, 0, 0, 0, time.UTC)
)

// testCatalog is small enough to auction to completion in a test. The
// m1 base price of 195 exercises the increment threshold: 195 → 205
// (+10) → 230 (+25).
func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Teams: []catalog.Team{
			{ID: "csk", Name: "Chennai Super Kings", ShortName: "CSK", Purse: 1000},
			{ID: "mi", Name: "Mumbai Indians", ShortName: "MI", Purse: 1000},
			{ID: "rcb", Name: "Royal Challengers Bengaluru", ShortName: "RCB", Purse: 200},
		},
		Players: []catalog.Player{
			{ID: "m1", Name: "Rohit Verma", Role: catalog.RoleBatsman, Marquee: true, Country: "India", BasePrice: 195},
			{ID: "m2", Name: "James Carter", Role: catalog.RoleBowler, Marquee: true, Country: "Australia", BasePrice: 150},
			{ID: "b1", Name: "Arjun Nair", Role: catalog.RoleBatsman, Country: "India", BasePrice: 100},
			{ID: "w1", Name: "Sam Porter", Role: catalog.RoleWicketKeeper, Country: "England", BasePrice: 50},
		},
	}
}

func testAuctionConfig() config.AuctionConfig {
	return config.Defaults().Auction
}

func newTestSession(clk clock.Clock, humans map[string]string) *auction.Session {
	return auction.NewSession("room-1", testCatalog(), testAuctionConfig(), humans, auction.Deps{
		Clock:          clk,
		Logger:         slog.Default(),
		TracerProvider: testTP,
	})
}
