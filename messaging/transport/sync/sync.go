// Package sync 同步的进程内传输：Publish 在调用方 goroutine 中依次执行处理器。
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"repokit/messaging"
)

// Transport 同步传输实现
type Transport struct {
	registry messaging.Registry
	running  atomic.Bool
}

// NewTransport 创建同步传输
func NewTransport() *Transport {
	return &Transport{}
}

// Publish 立即、同步地调用所有匹配的处理器，处理器错误合并返回
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	if !t.running.Load() {
		return fmt.Errorf("sync transport is not running")
	}
	if errs := t.registry.Dispatch(ctx, message); len(errs) > 0 {
		return fmt.Errorf("message %s handled with %d errors: %w", message.GetID(), len(errs), errors.Join(errs...))
	}
	return nil
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if handler == nil {
		return fmt.Errorf("sync transport: nil handler for %s", messageType)
	}
	t.registry.Add(messageType, handler)
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync transport is already running")
	}
	return nil
}

func (t *Transport) Close() error {
	t.running.Store(false)
	return nil
}

var _ messaging.Transport = (*Transport)(nil)
