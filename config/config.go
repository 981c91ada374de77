// Package config holds the knobs shared by server and client sessions.
package config

import (
	"fmt"
	"time"
)

// TickPolicy decides when the server advances its tick.
type TickPolicy uint8

const (
	// TickEveryFrame increments on every server update.
	TickEveryFrame TickPolicy = iota
	// TickManual leaves incrementing to the application.
	TickManual
	// TickMaxRate increments at most TickRate times per second.
	TickMaxRate
)

func (p TickPolicy) String() string {
	switch p {
	case TickEveryFrame:
		return "every-frame"
	case TickManual:
		return "manual"
	case TickMaxRate:
		return "max-rate"
	default:
		return fmt.Sprintf("TickPolicy(%d)", uint8(p))
	}
}

// AuthMethod decides when a connected client starts receiving replication.
type AuthMethod uint8

const (
	// AuthProtocolCheck authorizes once the client's protocol hash matches.
	AuthProtocolCheck AuthMethod = iota
	// AuthNone authorizes on connect.
	AuthNone
	// AuthCustom leaves authorization to the application.
	AuthCustom
)

func (m AuthMethod) String() string {
	switch m {
	case AuthProtocolCheck:
		return "protocol-check"
	case AuthNone:
		return "none"
	case AuthCustom:
		return "custom"
	default:
		return fmt.Sprintf("AuthMethod(%d)", uint8(m))
	}
}

// Config holds session configuration
type Config struct {
	TickPolicy TickPolicy
	TickRate   int // Only used by TickMaxRate

	Auth AuthMethod

	// Pending queue watermark; above it the queue reports degraded state
	MaxPendingEnvelopes int

	// Upper bound for a single outbound message, 0 = unlimited
	MaxMessageSize int

	// Unacknowledged mutation messages older than this many ticks are forgotten
	MutationTimeoutTicks uint64

	// Transport
	ListenAddress string
	WritePeriod   time.Duration
}

// Default returns production-safe defaults
func Default() *Config {
	return &Config{
		TickPolicy:           TickMaxRate,
		TickRate:             30,
		Auth:                 AuthProtocolCheck,
		MaxPendingEnvelopes:  1024,
		MaxMessageSize:       1 << 20,
		MutationTimeoutTicks: 64,
		ListenAddress:        ":7777",
		WritePeriod:          10 * time.Second,
	}
}

// Test returns defaults suited for deterministic in-process exchanges
func Test() *Config {
	cfg := Default()
	cfg.TickPolicy = TickEveryFrame
	return cfg
}

// Validate reports settings the sessions cannot run with.
func (c *Config) Validate() error {
	if c.TickPolicy == TickMaxRate && c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive for %s policy", c.TickPolicy)
	}
	if c.MaxPendingEnvelopes <= 0 {
		return fmt.Errorf("max pending envelopes must be positive, got %d", c.MaxPendingEnvelopes)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative, got %d", c.MaxMessageSize)
	}
	return nil
}
