package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	logger := zerolog.Nop()
	s := New(0, &logger)
	defer s.Stop()

	require.NoError(t, s.Add("expire-holds", "*/10 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("backup", "0 3 * * *", func(context.Context) error { return nil }))
	assert.Equal(t, 2, s.Len())

	err := s.Add("broken", "every minute", func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "broken")
	assert.Equal(t, 2, s.Len())
}

func TestRunWithRecovery(t *testing.T) {
	err := runWithRecovery(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorContains(t, err, "panic: boom")

	want := errors.New("failed")
	assert.ErrorIs(t, runWithRecovery(context.Background(), func(context.Context) error { return want }), want)
}

func TestRunPassesBoundedContext(t *testing.T) {
	logger := zerolog.Nop()
	s := New(0, &logger)

	var hasDeadline bool
	s.run("probe", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	assert.True(t, hasDeadline)

	s.Stop()
	var canceled bool
	s.run("after-stop", func(ctx context.Context) error {
		canceled = ctx.Err() != nil
		return nil
	})
	assert.True(t, canceled)
}
