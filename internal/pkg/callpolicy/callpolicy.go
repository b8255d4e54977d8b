// Package callpolicy bounds outbound calls with a fixed deadline per call class.
package callpolicy

import (
	"context"
	"time"
)

// Class identifies a kind of outbound call.
type Class int

const (
	Login Class = iota
	Lookup
	Read
	Write
)

func (c Class) String() string {
	switch c {
	case Login:
		return "login"
	case Lookup:
		return "lookup"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Policy holds the deadline of every call class. A zero duration disables the bound.
type Policy struct {
	Login  time.Duration
	Lookup time.Duration
	Read   time.Duration
	Write  time.Duration
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		Login:  10 * time.Second,
		Lookup: 5 * time.Second,
		Read:   5 * time.Second,
		Write:  10 * time.Second,
	}
}

// Timeout returns the deadline for class.
func (p Policy) Timeout(class Class) time.Duration {
	switch class {
	case Login:
		return p.Login
	case Lookup:
		return p.Lookup
	case Read:
		return p.Read
	case Write:
		return p.Write
	default:
		return 0
	}
}

// Context derives a context bounded by the deadline of class.
func (p Policy) Context(ctx context.Context, class Class) (context.Context, context.CancelFunc) {
	d := p.Timeout(class)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
