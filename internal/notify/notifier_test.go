package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEventType(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"market.finalized"}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "market.created", "created", "m"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Notify(ctx, "market.finalized", "finalized", "m"))
	assert.Equal(t, []string{"finalized"}, sender.titles)
}

func TestNotifyEmptyAllowListPassesEverything(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "market.disputed", "disputed", "m"))
	assert.Len(t, sender.titles, 1)
}

func TestDeliverContinuesPastFailedSender(t *testing.T) {
	broken := errors.New("webhook down")
	first := &fakeSender{name: "first", err: broken}
	second := &fakeSender{name: "second"}
	n := NewNotifier([]Sender{first, second}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "paused", "m")
	assert.ErrorIs(t, err, broken)
	assert.Len(t, second.titles, 1)
}
