// Package natsjetstream 基于 NATS JetStream 的消息传输。
//
// 所有消息发布到 SubjectPrefix+类型 主题，同一个 Stream 覆盖 SubjectPrefix+">"；
// 订阅端只建立一个持久队列订阅，按消息类型在进程内分发。
package natsjetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"repokit/logging"
	"repokit/messaging"
)

// jetStream 传输依赖的 JetStream 子集（便于测试替换）
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Config JetStream 传输配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Durable       string
	AckWait       time.Duration
	MaxAckPending int
	// Retention: limits|interest|workqueue（默认 limits，变更通知允许多个消费组）
	Retention string
	MaxAge    time.Duration
	Conn      *nats.Conn
	Logger    logging.Logger
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg      Config
	logger   logging.Logger
	registry messaging.Registry

	mu       sync.Mutex
	conn     *nats.Conn
	ownsConn bool
	js       jetStream
	sub      *nats.Subscription
	running  bool
}

// NewTransport 创建传输，Start 时才建立连接
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "REPOKIT"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "repokit."
	}
	if !strings.HasSuffix(cfg.SubjectPrefix, ".") {
		cfg.SubjectPrefix += "."
	}
	if cfg.Durable == "" {
		cfg.Durable = "repokit-changefeed"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Transport{cfg: cfg, logger: cfg.Logger}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.Lock()
	js, running := t.js, t.running
	t.mu.Unlock()
	if !running || js == nil {
		return errors.New("nats transport not running")
	}
	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	_, err = js.Publish(t.subject(message.GetType()), data, nats.Context(ctx), nats.MsgId(message.GetID()))
	return err
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if handler == nil {
		return errors.New("nats transport: nil handler")
	}
	t.registry.Add(messageType, handler)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return t.subscribeLocked()
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if err := t.connectLocked(); err != nil {
		return err
	}
	if err := t.ensureStreamLocked(); err != nil {
		return err
	}
	if len(t.registry.Types()) > 0 {
		if err := t.subscribeLocked(); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.sub != nil {
		_ = t.sub.Drain()
		t.sub = nil
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	return nil
}

func (t *Transport) connectLocked() error {
	if t.js != nil {
		return nil
	}
	conn := t.cfg.Conn
	if conn == nil {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		c, err := nats.Connect(url, nats.Name("repokit"))
		if err != nil {
			return err
		}
		conn = c
		t.ownsConn = true
	}
	js, err := conn.JetStream()
	if err != nil {
		if t.ownsConn {
			conn.Close()
		}
		return err
	}
	t.conn = conn
	t.js = js
	return nil
}

func (t *Transport) ensureStreamLocked() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	retention := nats.LimitsPolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "interest":
		retention = nats.InterestPolicy
	case "workqueue":
		retention = nats.WorkQueuePolicy
	}
	_, err = t.js.AddStream(&nats.StreamConfig{
		Name:      t.cfg.Stream,
		Subjects:  []string{t.cfg.SubjectPrefix + ">"},
		Retention: retention,
		MaxAge:    t.cfg.MaxAge,
	})
	return err
}

func (t *Transport) subscribeLocked() error {
	if t.sub != nil {
		return nil
	}
	sub, err := t.js.QueueSubscribe(t.cfg.SubjectPrefix+">", t.cfg.Durable, t.handleMessage,
		nats.ManualAck(),
		nats.Durable(t.cfg.Durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return err
	}
	t.sub = sub
	return nil
}

func (t *Transport) handleMessage(msg *nats.Msg) {
	ctx := context.Background()
	decoded, err := messaging.Unmarshal(msg.Data)
	if err != nil {
		t.logger.Warn(ctx, "decode nats message failed", logging.String("subject", msg.Subject), logging.Error(err))
		_ = msg.Term()
		return
	}
	if decoded.Type == "" {
		decoded.Type = strings.TrimPrefix(msg.Subject, t.cfg.SubjectPrefix)
	}
	if errs := t.registry.Dispatch(ctx, decoded); len(errs) > 0 {
		t.logger.Warn(ctx, "nats message handler failed, redelivery requested",
			logging.String("type", decoded.Type), logging.Error(errors.Join(errs...)))
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
	}
}

func (t *Transport) subject(messageType string) string {
	return t.cfg.SubjectPrefix + messageType
}

var _ messaging.Transport = (*Transport)(nil)
