package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"repokit/messaging"
)

// Handler 变更处理函数
type Handler func(ctx context.Context, change Change) error

// Subscribe 订阅变更。entity 为空时订阅全部实体；kind 为空时订阅该实体的全部变更类型。
func Subscribe(transport messaging.Transport, entity string, kind Kind, handler Handler) error {
	if transport == nil || handler == nil {
		return fmt.Errorf("changefeed: transport and handler are required")
	}
	wrapped := messaging.HandlerFunc(func(ctx context.Context, msg messaging.IMessage) error {
		change, err := Decode(msg)
		if err != nil {
			return err
		}
		if entity != "" && !sameEntity(change.Entity, entity) {
			return nil
		}
		if kind != "" && change.Kind != kind {
			return nil
		}
		return handler(ctx, change)
	})

	if entity != "" && kind != "" {
		return transport.Subscribe(MessageType(entity, kind), wrapped)
	}
	return transport.Subscribe(messaging.Wildcard, wrapped)
}

// Decode 从消息还原变更。进程内传输保留原始类型，跨进程传输得到的是通用 JSON 值。
func Decode(msg messaging.IMessage) (Change, error) {
	switch p := msg.GetPayload().(type) {
	case Change:
		return p, nil
	case *Change:
		if p != nil {
			return *p, nil
		}
	}
	data, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return Change{}, err
	}
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("changefeed: decode %s: %w", msg.GetType(), err)
	}
	return c, nil
}

func sameEntity(a, b string) bool {
	return MessageType(a, "") == MessageType(b, "")
}
