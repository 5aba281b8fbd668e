package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) report(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, s)
}

func (r *recorder) has(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func fastManager(r *recorder) *Manager {
	m := NewManager(r.report)
	m.MinDelay = time.Millisecond
	m.MaxDelay = 4 * time.Millisecond
	return m
}

func TestRestartsAfterErrorAndPanic(t *testing.T) {
	rec := &recorder{}
	m := fastManager(rec)

	var lives atomic.Int32
	err := m.Start(context.Background(), "presence", func(ctx context.Context) error {
		switch lives.Add(1) {
		case 1:
			return errors.New("connection lost")
		case 2:
			panic("unexpected")
		default:
			<-ctx.Done()
			return nil
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return lives.Load() >= 3 }, time.Second, time.Millisecond)

	job, ok := m.Get("presence")
	require.True(t, ok)
	assert.EqualValues(t, 2, job.Restarts())
	assert.True(t, rec.has("error:presence:connection lost"))
	assert.True(t, rec.has("error:presence:panic: unexpected"))

	require.NoError(t, m.Stop("presence"))
	assert.True(t, rec.has("stopped:presence"))
	assert.Empty(t, m.List())
}

func TestStartTwiceFails(t *testing.T) {
	m := fastManager(&recorder{})
	block := func(ctx context.Context) error { <-ctx.Done(); return nil }

	require.NoError(t, m.Start(context.Background(), "job", block))
	assert.Error(t, m.Start(context.Background(), "job", block))

	m.StopAll()
	assert.Equal(t, "No jobs are running.", m.Status())
	assert.Error(t, m.Stop("job"))
}

func TestParentCancellationEndsJob(t *testing.T) {
	rec := &recorder{}
	m := fastManager(rec)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, m.Start(ctx, "job", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.Equal(t, "Running jobs: job (restarts: 0)", m.Status())

	cancel()
	require.Eventually(t, func() bool { return len(m.List()) == 0 }, time.Second, time.Millisecond)
	assert.False(t, rec.has("error:job"))
}
