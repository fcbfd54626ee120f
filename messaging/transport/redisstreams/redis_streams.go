// Package redisstreams 基于 Redis Streams 消费组的消息传输。
//
// 所有消息写入同一个 Stream（可按 MaxLen 近似裁剪），订阅端以消费组读取后按类型分发。
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"repokit/logging"
	"repokit/messaging"
)

// client 传输依赖的 go-redis 命令子集（便于测试替换）
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Password     string
	DB           int
	Stream       string
	MaxLen       int64
	GroupName    string
	ConsumerName string
	BlockTimeout time.Duration
	ReadCount    int64
	// 读取失败时的退避区间
	MinReadBackoff time.Duration
	MaxReadBackoff time.Duration
	Logger         logging.Logger
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
	registry  messaging.Registry

	mu      sync.Mutex
	running bool
	reading bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTransport 创建传输；未提供 Client 时按 Addr 自行创建并在 Close 时关闭
func NewTransport(cfg Config) (*Transport, error) {
	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis streams transport: addr or client required")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newTransport(cfg, cl, own), nil
}

func newTransport(cfg Config, cl client, own bool) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "repokit:changes"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "repokit"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}
	return &Transport{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	values, err := encodeMessage(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: t.cfg.Stream, Values: values}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	return t.client.XAdd(ctx, args).Err()
}

// PublishAll 逐条写入（XADD 不支持批量追加）
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
		return errors.New("redis streams transport: nil handler")
	}
	t.registry.Add(messageType, handler)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.startReaderLocked()
	}
	return nil
}

// Start 有订阅时启动后台读取协程
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true
	if len(t.registry.Types()) > 0 {
		t.startReaderLocked()
	}
	return nil
}

// Close 停止读取协程并等待退出
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.running = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

func (t *Transport) startReaderLocked() {
	if t.reading {
		return
	}
	t.reading = true
	t.wg.Add(1)
	go t.readLoop(t.ctx)
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.wg.Done()
	if err := t.ensureGroup(ctx); err != nil {
		t.logger.Warn(ctx, "ensure consumer group failed", logging.String("stream", t.cfg.Stream), logging.Error(err))
	}
	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{t.cfg.Stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := t.cfg.MinReadBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn(ctx, "xreadgroup failed", logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, t.cfg.MaxReadBackoff)
			continue
		}
		backoff = t.cfg.MinReadBackoff
		for _, stream := range res {
			for _, entry := range stream.Messages {
				t.handleEntry(ctx, stream.Stream, entry)
			}
		}
	}
}

// handleEntry 解码失败直接确认丢弃；处理器失败不确认，留在待处理列表中
func (t *Transport) handleEntry(ctx context.Context, stream string, entry redis.XMessage) {
	msg, err := decodeMessage(entry)
	if err != nil {
		t.logger.Warn(ctx, "decode redis stream entry failed", logging.String("entry", entry.ID), logging.Error(err))
		_ = t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err()
		return
	}
	if errs := t.registry.Dispatch(ctx, msg); len(errs) > 0 {
		t.logger.Warn(ctx, "redis stream handler failed", logging.String("entry", entry.ID), logging.Error(errors.Join(errs...)))
		return
	}
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); err != nil {
		t.logger.Warn(ctx, "xack failed", logging.Error(err))
	}
}

func (t *Transport) ensureGroup(ctx context.Context) error {
	err := t.client.XGroupCreateMkStream(ctx, t.cfg.Stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func encodeMessage(msg messaging.IMessage) (map[string]any, error) {
	env, err := messaging.ToEnvelope(msg)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        env.ID,
		"type":      env.Type,
		"timestamp": env.Timestamp,
		"payload":   string(env.Payload),
		"metadata":  string(metadata),
	}, nil
}

func decodeMessage(entry redis.XMessage) (*messaging.Message, error) {
	env := messaging.Envelope{}
	env.ID, _ = entry.Values["id"].(string)
	env.Type, _ = entry.Values["type"].(string)
	if env.ID == "" {
		env.ID = entry.ID
	}

	if raw, _ := entry.Values["payload"].(string); raw != "" {
		env.Payload = []byte(raw)
	}
	if raw, _ := entry.Values["metadata"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &env.Metadata); err != nil {
			return nil, err
		}
	}

	// Redis 返回的字段值都是字符串
	switch v := entry.Values["timestamp"].(type) {
	case int64:
		env.Timestamp = v
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			env.Timestamp = ns
		}
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixNano()
	}
	return env.Message()
}

var _ messaging.Transport = (*Transport)(nil)
