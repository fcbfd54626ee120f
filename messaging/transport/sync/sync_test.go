package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/messaging"
)

func TestTransport_Publish(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()

	var exact, all []string
	require.NoError(t, tr.Subscribe("repokit.blogs.added", messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		exact = append(exact, m.GetID())
		return nil
	})))
	require.NoError(t, tr.Subscribe(messaging.Wildcard, messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		all = append(all, m.GetType())
		return nil
	})))

	msg := messaging.NewMessage("repokit.blogs.added", map[string]any{"id": 1})
	assert.Error(t, tr.Publish(ctx, msg), "未启动时拒绝发布")

	require.NoError(t, tr.Start(ctx))
	assert.Error(t, tr.Start(ctx))

	require.NoError(t, tr.PublishAll(ctx, []messaging.IMessage{
		msg,
		messaging.NewMessage("repokit.blogs.removed", nil),
	}))
	assert.Equal(t, []string{msg.ID}, exact)
	assert.Equal(t, []string{"repokit.blogs.added", "repokit.blogs.removed"}, all)

	require.NoError(t, tr.Close())
	assert.Error(t, tr.Publish(ctx, msg))
}

func TestTransport_HandlerErrorsJoined(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()
	boom := errors.New("boom")
	require.NoError(t, tr.Subscribe("t", messaging.HandlerFunc(func(context.Context, messaging.IMessage) error { return boom })))
	require.NoError(t, tr.Subscribe("t", messaging.HandlerFunc(func(context.Context, messaging.IMessage) error { return nil })))
	require.NoError(t, tr.Start(ctx))

	err := tr.Publish(ctx, messaging.NewMessage("t", nil))
	assert.ErrorIs(t, err, boom)
	assert.Error(t, tr.Subscribe("t", nil))
}
