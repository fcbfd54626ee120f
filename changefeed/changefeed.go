// Package changefeed 把仓储写操作发布为变更通知。
//
// 通知只描述“哪个实体的哪些键发生了何种变化”，不携带历史或差异。
// 处于工作单元中时通知被缓存，提交成功后才发布。
package changefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"repokit/logging"
	"repokit/messaging"
	"repokit/retry"
	"repokit/uow"
)

// Kind 变更类型
type Kind string

const (
	Added   Kind = "added"
	Updated Kind = "updated"
	Removed Kind = "removed"
)

// TypePrefix 消息类型前缀，完整类型为 repokit.<entity>.<kind>
const TypePrefix = "repokit"

// Change 一次实体变更
type Change struct {
	Entity string    `json:"entity"`
	Kind   Kind      `json:"kind"`
	Keys   []any     `json:"keys,omitempty"`
	At     time.Time `json:"at"`
}

// MessageType 返回变更对应的消息类型
func (c Change) MessageType() string {
	return MessageType(c.Entity, c.Kind)
}

// MessageType 拼接消息类型，实体名统一小写
func MessageType(entity string, kind Kind) string {
	return fmt.Sprintf("%s.%s.%s", TypePrefix, strings.ToLower(entity), kind)
}

// ToMessage 把变更包装为消息，并附带工作单元标识（若有）
func (c Change) ToMessage(ctx context.Context) *messaging.Message {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	msg := messaging.NewMessage(c.MessageType(), c)
	msg.SetMetadata("entity", c.Entity)
	if id := uow.ID(ctx); id != "" {
		msg.SetMetadata("uow_id", id)
	}
	return msg
}

// Publisher 变更发布器
type Publisher struct {
	transport messaging.Transport
	logger    logging.Logger
	retry     retry.Config
	now       func() time.Time
}

// NewPublisher 创建发布器；transport 为 nil 时所有发布都是空操作
func NewPublisher(transport messaging.Transport, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.ComponentLogger("changefeed")
	}
	return &Publisher{transport: transport, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithRetry 传输层发布失败时按 cfg 重试，返回 p 便于链式调用
func (p *Publisher) WithRetry(cfg retry.Config) *Publisher {
	p.retry = cfg
	return p
}

// Publish 发布一组变更。处于工作单元中时登记为提交回调并立即返回。
func (p *Publisher) Publish(ctx context.Context, changes ...Change) error {
	if p == nil || p.transport == nil || len(changes) == 0 {
		return nil
	}
	messages := make([]messaging.IMessage, 0, len(changes))
	for _, c := range changes {
		if c.At.IsZero() {
			c.At = p.now()
		}
		messages = append(messages, c.ToMessage(ctx))
	}

	if uow.AfterCommit(ctx, func(ctx context.Context) error {
		return p.send(ctx, messages)
	}) {
		p.logger.Debug(ctx, "changes deferred until commit", logging.Int("count", len(messages)), logging.String("uow_id", uow.ID(ctx)))
		return nil
	}
	return p.send(ctx, messages)
}

// Notify 便捷方法：同一实体、同一变更类型的一组键
func (p *Publisher) Notify(ctx context.Context, entity string, kind Kind, keys ...[]any) error {
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		changes = append(changes, Change{Entity: entity, Kind: kind, Keys: k})
	}
	return p.Publish(ctx, changes...)
}

func (p *Publisher) send(ctx context.Context, messages []messaging.IMessage) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return p.transport.PublishAll(ctx, messages)
	}, p.retry)
	if err != nil {
		p.logger.Warn(ctx, "publish changes failed", logging.Int("count", len(messages)), logging.Error(err))
		return err
	}
	return nil
}
