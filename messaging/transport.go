package messaging

import "context"

// Transport 消息传输接口
type Transport interface {
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	// Subscribe 登记处理器，messageType 为 Wildcard 时接收所有类型
	Subscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
}
