package callpolicy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_ContextAppliesClassDeadline(t *testing.T) {
	p := Policy{Login: time.Minute, Read: time.Second}

	ctx, cancel := p.Context(context.Background(), Read)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 200*time.Millisecond)
}

func TestPolicy_ZeroDisablesDeadline(t *testing.T) {
	p := Policy{}

	ctx, cancel := p.Context(context.Background(), Write)
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestPolicy_ExpiredDeadline(t *testing.T) {
	p := Policy{Lookup: time.Millisecond}

	ctx, cancel := p.Context(context.Background(), Lookup)
	defer cancel()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
