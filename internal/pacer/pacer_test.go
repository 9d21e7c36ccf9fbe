package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_NilPacerNeverBlocks(t *testing.T) {
	var p *Pacer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, p.RequestBytes(ctx, 1<<30))
}

func TestPacer_AllowsBurstImmediately(t *testing.T) {
	p := New(100, 1000)
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, p.RequestBytes(ctx, 1000))
}

func TestPacer_BlocksUntilRefillWhenOverBurst(t *testing.T) {
	p := New(1000, 10)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.RequestBytes(ctx, 20)
	assert.Error(t, err)
}

func TestPacer_RefillsOverTime(t *testing.T) {
	p := New(10000, 10)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.RequestBytes(ctx, 10)) // drains burst

	ctx2, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, p.RequestBytes(ctx2, 5))
}

func TestPacer_ObservedBytesPerSecond_ReflectsGrantedBytes(t *testing.T) {
	p := New(10000, 1000)
	defer p.Close()

	require.NoError(t, p.RequestBytes(context.Background(), 500))

	assert.Greater(t, p.ObservedBytesPerSecond(), float64(0))
}

func TestPacer_ObservedBytesPerSecond_NilPacerReportsZero(t *testing.T) {
	var p *Pacer
	assert.Equal(t, float64(0), p.ObservedBytesPerSecond())
}
