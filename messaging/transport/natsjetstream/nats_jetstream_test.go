package natsjetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/messaging"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	streams   map[string]*nats.StreamConfig
	published []published
	subjects  []string
	failPub   error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.failPub != nil {
		return nil, f.failPub
	}
	f.published = append(f.published, published{subject: subj, data: data})
	return &nats.PubAck{Stream: "REPOKIT", Sequence: uint64(len(f.published))}, nil
}

func (f *fakeJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if cfg, ok := f.streams[stream]; ok {
		return &nats.StreamInfo{Config: *cfg}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.streams == nil {
		f.streams = make(map[string]*nats.StreamConfig)
	}
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	f.subjects = append(f.subjects, subj)
	return &nats.Subscription{Subject: subj, Queue: queue}, nil
}

func newTestTransport(js *fakeJetStream) *Transport {
	tr := NewTransport(Config{SubjectPrefix: "feed"})
	tr.js = js
	return tr
}

func TestTransport_StartCreatesStreamAndSubscribes(t *testing.T) {
	js := &fakeJetStream{}
	tr := newTestTransport(js)
	require.NoError(t, tr.Subscribe(messaging.Wildcard, messaging.HandlerFunc(func(context.Context, messaging.IMessage) error { return nil })))

	require.NoError(t, tr.Start(context.Background()))
	require.Contains(t, js.streams, "REPOKIT")
	assert.Equal(t, []string{"feed.>"}, js.streams["REPOKIT"].Subjects)
	assert.Equal(t, nats.LimitsPolicy, js.streams["REPOKIT"].Retention)
	assert.Equal(t, []string{"feed.>"}, js.subjects)

	// 重复订阅不会再建订阅
	require.NoError(t, tr.Subscribe("x", messaging.HandlerFunc(func(context.Context, messaging.IMessage) error { return nil })))
	assert.Len(t, js.subjects, 1)
	assert.Error(t, tr.Start(context.Background()))
}

func TestTransport_Publish(t *testing.T) {
	js := &fakeJetStream{}
	tr := newTestTransport(js)
	msg := messaging.NewMessage("repokit.blogs.added", map[string]any{"keys": []any{1}})

	assert.Error(t, tr.Publish(context.Background(), msg))

	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.PublishAll(context.Background(), []messaging.IMessage{msg}))
	require.Len(t, js.published, 1)
	assert.Equal(t, "feed.repokit.blogs.added", js.published[0].subject)

	decoded, err := messaging.Unmarshal(js.published[0].data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)

	js.failPub = errors.New("no responders")
	assert.ErrorIs(t, tr.Publish(context.Background(), msg), js.failPub)
}

func TestTransport_HandleMessageDispatches(t *testing.T) {
	tr := newTestTransport(&fakeJetStream{})
	var got []string
	require.NoError(t, tr.Subscribe("repokit.blogs.removed", messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		got = append(got, m.GetType())
		return nil
	})))

	env := &messaging.Message{ID: "1", Payload: map[string]any{}}
	data, err := messaging.Marshal(env)
	require.NoError(t, err)

	// 没有绑定连接的消息 Ack 返回错误，只记录日志
	tr.handleMessage(&nats.Msg{Subject: "feed.repokit.blogs.removed", Data: data})
	assert.Equal(t, []string{"repokit.blogs.removed"}, got)
}
