package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Auth           AuthConfig           `yaml:"auth"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Auction        AuctionConfig        `yaml:"auction"`
	Bots           BotsConfig           `yaml:"bots"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings. With
// election enabled only one replica runs auction rooms, which keeps a
// single authoritative writer for all live auction state.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// CatalogConfig points at the team/player reference data. An empty path
// selects the bundled catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// AuctionConfig holds the bidding rules for a lot.
type AuctionConfig struct {
	// TimerTicks is the countdown a lot starts with; every accepted bid
	// resets the countdown to this value.
	TimerTicks int `yaml:"timer_ticks"`
	// TickInterval is the wall-clock length of one countdown tick.
	TickInterval time.Duration `yaml:"tick_interval"`
	// TransitionTicks is how many ticks a resolved lot lingers before the
	// next player comes up.
	TransitionTicks int `yaml:"transition_ticks"`
	// SmallStep is the bid increment while the current bid is below
	// StepThreshold; LargeStep applies from the threshold up.
	SmallStep     int `yaml:"small_step"`
	LargeStep     int `yaml:"large_step"`
	StepThreshold int `yaml:"step_threshold"`
	// CategoryOrder fixes the order categories are auctioned in. It may be
	// permuted in the config file but not once a session has entered a
	// category.
	CategoryOrder []string `yaml:"category_order"`
}

// BotsConfig tunes the simulated opponents. All probabilities are in
// [0,1]; delays are wall-clock.
type BotsConfig struct {
	Enabled bool `yaml:"enabled"`
	// ChallengeHuman is the probability of contesting a human-led bid;
	// ChallengeHumanExpensive replaces it once the bid exceeds
	// ExpensiveMultiple times the base price.
	ChallengeHuman          float64 `yaml:"challenge_human"`
	ChallengeHumanExpensive float64 `yaml:"challenge_human_expensive"`
	ExpensiveMultiple       int     `yaml:"expensive_multiple"`
	// ChallengeDelayMin/Max bound the random delay before contesting a
	// human-led bid.
	ChallengeDelayMin time.Duration `yaml:"challenge_delay_min"`
	ChallengeDelayMax time.Duration `yaml:"challenge_delay_max"`
	// OpenBid is the probability of opening the bidding on a fresh lot
	// after OpenBidDelay.
	OpenBid      float64       `yaml:"open_bid"`
	OpenBidDelay time.Duration `yaml:"open_bid_delay"`
	// ChallengeBot is the probability of one bot contesting another after
	// ChallengeBotDelay.
	ChallengeBot      float64       `yaml:"challenge_bot"`
	ChallengeBotDelay time.Duration `yaml:"challenge_bot_delay"`
	// Hesitation is the chance a scheduled bid is abandoned at fire time.
	Hesitation float64 `yaml:"hesitation"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-filled with the stock auction rules.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "memory",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "gaveld",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "gaveld-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Auction: AuctionConfig{
			TimerTicks:      15,
			TickInterval:    time.Second,
			TransitionTicks: 3,
			SmallStep:       10,
			LargeStep:       25,
			StepThreshold:   200,
			CategoryOrder:   []string{"Marquee", "Batsman", "Bowler", "All-Rounder", "Wicket Keeper"},
		},
		Bots: BotsConfig{
			Enabled:                 true,
			ChallengeHuman:          0.8,
			ChallengeHumanExpensive: 0.3,
			ExpensiveMultiple:       5,
			ChallengeDelayMin:       time.Second,
			ChallengeDelayMax:       3 * time.Second,
			OpenBid:                 0.6,
			OpenBidDelay:            2 * time.Second,
			ChallengeBot:            0.3,
			ChallengeBotDelay:       2500 * time.Millisecond,
			Hesitation:              0.5,
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}
	if c.Auction.TimerTicks <= 0 {
		return fmt.Errorf("auction.timer_ticks must be positive, got %d", c.Auction.TimerTicks)
	}
	if c.Auction.TickInterval <= 0 {
		return fmt.Errorf("auction.tick_interval must be positive, got %v", c.Auction.TickInterval)
	}
	if c.Auction.SmallStep <= 0 || c.Auction.LargeStep <= 0 {
		return fmt.Errorf("auction bid steps must be positive, got small=%d large=%d", c.Auction.SmallStep, c.Auction.LargeStep)
	}
	if len(c.Auction.CategoryOrder) == 0 {
		return fmt.Errorf("auction.category_order must not be empty")
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"bots.challenge_human", c.Bots.ChallengeHuman},
		{"bots.challenge_human_expensive", c.Bots.ChallengeHumanExpensive},
		{"bots.open_bid", c.Bots.OpenBid},
		{"bots.challenge_bot", c.Bots.ChallengeBot},
		{"bots.hesitation", c.Bots.Hesitation},
	} {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", p.name, p.value)
		}
	}
	if c.Bots.ChallengeDelayMax < c.Bots.ChallengeDelayMin {
		return fmt.Errorf("bots.challenge_delay_max %v is below bots.challenge_delay_min %v",
			c.Bots.ChallengeDelayMax, c.Bots.ChallengeDelayMin)
	}
	return nil
}
