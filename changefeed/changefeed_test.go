package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"repokit/data/db"
	"repokit/data/db/basic"
	"repokit/logging"
	"repokit/messaging"
	synctransport "repokit/messaging/transport/sync"
	"repokit/retry"
	"repokit/uow"
)

func newTransport(t *testing.T) *synctransport.Transport {
	t.Helper()
	tr := synctransport.NewTransport()
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func collect(t *testing.T, tr messaging.Transport, entity string, kind Kind) *[]Change {
	t.Helper()
	var got []Change
	require.NoError(t, Subscribe(tr, entity, kind, func(_ context.Context, c Change) error {
		got = append(got, c)
		return nil
	}))
	return &got
}

func TestMessageType(t *testing.T) {
	assert.Equal(t, "repokit.blog.added", MessageType("Blog", Added))
	c := Change{Entity: "Post", Kind: Removed}
	assert.Equal(t, "repokit.post.removed", c.MessageType())
}

func TestPublishImmediately(t *testing.T) {
	tr := newTransport(t)
	all := collect(t, tr, "", "")
	removedOnly := collect(t, tr, "Blog", Removed)

	p := NewPublisher(tr, logging.NewNoopLogger())
	p.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, p.Notify(context.Background(), "Blog", Added, []any{1}, []any{2}))
	require.NoError(t, p.Publish(context.Background(), Change{Entity: "Blog", Kind: Removed, Keys: []any{1}}))

	require.Len(t, *all, 3)
	assert.Equal(t, []any{2}, (*all)[1].Keys)
	assert.Equal(t, 2024, (*all)[0].At.Year())
	require.Len(t, *removedOnly, 1)
	assert.Equal(t, Removed, (*removedOnly)[0].Kind)
}

func TestNilTransportIsNoop(t *testing.T) {
	p := NewPublisher(nil, nil)
	assert.NoError(t, p.Notify(context.Background(), "Blog", Added, []any{1}))

	var nilPublisher *Publisher
	assert.NoError(t, nilPublisher.Publish(context.Background(), Change{Entity: "Blog"}))
}

func TestPublishDeferredInUnitOfWork(t *testing.T) {
	d, err := basic.New(db.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	u := uow.New(d)

	tr := newTransport(t)
	got := collect(t, tr, "Blog", "")
	p := NewPublisher(tr, logging.NewNoopLogger())

	ctx, err := u.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Notify(ctx, "Blog", Updated, []any{7}))
	assert.Empty(t, *got)
	require.NoError(t, u.Commit(ctx))
	require.Len(t, *got, 1)
	assert.Equal(t, Updated, (*got)[0].Kind)

	ctx, err = u.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Notify(ctx, "Blog", Removed, []any{7}))
	require.NoError(t, u.Rollback(ctx))
	assert.Len(t, *got, 1)
}

func TestMessageCarriesUnitOfWorkID(t *testing.T) {
	d, err := basic.New(db.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	u := uow.New(d)

	ctx, err := u.Begin(context.Background())
	require.NoError(t, err)
	defer u.Rollback(ctx)

	msg := Change{Entity: "Blog", Kind: Added}.ToMessage(ctx)
	assert.Equal(t, uow.ID(ctx), msg.GetMetadata()["uow_id"])
	assert.Equal(t, "Blog", msg.GetMetadata()["entity"])
	assert.False(t, msg.GetPayload().(Change).At.IsZero())
}

func TestDecodeFromJSONPayload(t *testing.T) {
	data, err := messaging.Marshal(Change{Entity: "Blog", Kind: Added, Keys: []any{3}}.ToMessage(context.Background()))
	require.NoError(t, err)
	msg, err := messaging.Unmarshal(data)
	require.NoError(t, err)

	c, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, "Blog", c.Entity)
	assert.Equal(t, Added, c.Kind)
	assert.Equal(t, []any{float64(3)}, c.Keys)
}

type flakyTransport struct {
	messaging.Transport
	failures int
	calls    int
}

func (f *flakyTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	f.calls++
	if f.calls <= f.failures {
		return assert.AnError
	}
	return f.Transport.PublishAll(ctx, messages)
}

func TestPublishRetries(t *testing.T) {
	tr := newTransport(t)
	got := collect(t, tr, "Blog", Added)
	flaky := &flakyTransport{Transport: tr, failures: 2}

	p := NewPublisher(flaky, logging.NewNoopLogger()).
		WithRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond})
	require.NoError(t, p.Publish(context.Background(), Change{Entity: "Blog", Kind: Added, Keys: []any{1}}))
	assert.Equal(t, 3, flaky.calls)
	assert.Len(t, *got, 1)

	// 未配置重试时只尝试一次
	flaky.calls, flaky.failures = 0, 1
	err := NewPublisher(flaky, logging.NewNoopLogger()).Publish(context.Background(), Change{Entity: "Blog", Kind: Added})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, flaky.calls)
}
