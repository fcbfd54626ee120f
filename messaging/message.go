// Package messaging 提供消息与传输层抽象，变更通知经由 Transport 发布。
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IMessage 消息接口
type IMessage interface {
	GetID() string
	GetType() string
	GetTimestamp() time.Time
	GetPayload() any
	GetMetadata() map[string]any
}

// Message 消息基础实现
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage 创建新消息，ID 为随机 UUID
func NewMessage(messageType string, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  make(map[string]any),
	}
}

func (m *Message) GetID() string           { return m.ID }
func (m *Message) GetType() string         { return m.Type }
func (m *Message) GetTimestamp() time.Time { return m.Timestamp }
func (m *Message) GetPayload() any         { return m.Payload }

// GetMetadata 获取元数据（惰性初始化）
func (m *Message) GetMetadata() map[string]any {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	return m.Metadata
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key string, value any) {
	m.GetMetadata()[key] = value
}

// Envelope 线上传输格式，时间戳为 UnixNano
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata"`
}

// Marshal 把消息编码为 JSON Envelope
func Marshal(msg IMessage) ([]byte, error) {
	env, err := ToEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ToEnvelope 把消息转换为 Envelope（payload 预先编码）
func ToEnvelope(msg IMessage) (Envelope, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return Envelope{}, err
	}
	metadata := msg.GetMetadata()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return Envelope{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}

// Unmarshal 解码 JSON Envelope，payload 解为通用 JSON 值
func Unmarshal(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Message()
}

// Message 把 Envelope 还原为 Message
func (e Envelope) Message() (*Message, error) {
	var payload any
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return nil, err
		}
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	return &Message{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: time.Unix(0, e.Timestamp).UTC(),
		Payload:   payload,
		Metadata:  e.Metadata,
	}, nil
}
