package messaging

import (
	"context"
	"slices"
	"sync"
)

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	Handle(ctx context.Context, message IMessage) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, message IMessage) error

func (f HandlerFunc) Handle(ctx context.Context, message IMessage) error {
	return f(ctx, message)
}

// Wildcard 订阅所有消息类型
const Wildcard = "*"

// Registry 按消息类型登记处理器，供各传输实现共享
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]IMessageHandler
}

// Add 登记处理器，返回该类型是否为首次登记
func (r *Registry) Add(messageType string, handler IMessageHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string][]IMessageHandler)
	}
	first := len(r.handlers[messageType]) == 0
	r.handlers[messageType] = append(r.handlers[messageType], handler)
	return first
}

// Handlers 返回精确匹配与通配处理器
func (r *Registry) Handlers(messageType string) []IMessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exact := r.handlers[messageType]
	wildcard := r.handlers[Wildcard]
	out := make([]IMessageHandler, 0, len(exact)+len(wildcard))
	out = append(out, exact...)
	if messageType != Wildcard {
		out = append(out, wildcard...)
	}
	return out
}

// Types 已登记的消息类型（有序）
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for mt := range r.handlers {
		types = append(types, mt)
	}
	slices.Sort(types)
	return types
}

// Dispatch 依次调用处理器，返回各处理器的错误
func (r *Registry) Dispatch(ctx context.Context, message IMessage) []error {
	var errs []error
	for _, h := range r.Handlers(message.GetType()) {
		if err := h.Handle(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
