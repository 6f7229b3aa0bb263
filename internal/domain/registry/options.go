package registry

import (
	"errors"
	"fmt"
	"log/slog"
)

// Policy decides what happens when a user who is already online registers
// another connection.
type Policy string

const (
	// FirstWins keeps the existing mapping (insert-if-absent).
	FirstWins Policy = "first_wins"
	// LastWins makes the newest connection authoritative.
	LastWins Policy = "last_wins"
)

var ErrUnknownPolicy = errors.New("registry: unknown presence policy")

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case FirstWins, LastWins:
		return p, nil
	case "":
		return FirstWins, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Option defines a functional configuration type for the Registry.
type Option func(*Registry)

// WithPolicy sets the duplicate registration policy. Defaults to FirstWins.
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithLogger attaches a logger; the registry is silent without one.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}
