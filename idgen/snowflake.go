// Package idgen 生成按时间递增的 int64 主键（雪花算法），
// 用于需要在写入前确定主键的实体（如批量导入的文章与评论）。
package idgen

import (
	"fmt"
	"sync"
	"time"

	"repokit/errors"
)

// 2024-01-01 00:00:00 UTC（毫秒）
const epoch int64 = 1704067200000

const (
	nodeBits     = 10
	sequenceBits = 12

	MaxNode     = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

// Generator 单节点 ID 生成器，并发安全
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	last     int64
	now      func() int64
}

// New node 取值 [0, MaxNode]
func New(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, errors.NewInvalidArgument("node", fmt.Sprintf("must be within [0, %d]", MaxNode))
	}
	return &Generator{
		node: node,
		last: -1,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next 生成下一个 ID；时钟回拨时返回错误而不是生成重复 ID
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.last {
		return 0, errors.NewError(errors.ErrCodeInternal,
			fmt.Sprintf("idgen: clock moved backwards by %dms", g.last-ts))
	}
	if ts == g.last {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 本毫秒序列耗尽
			for ts <= g.last {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.last = ts

	return (ts-epoch)<<timeShift | g.node<<nodeShift | g.sequence, nil
}

// MustNext 同 Next，出错时 panic；仅用于示例数据与测试
func (g *Generator) MustNext() int64 {
	id, err := g.Next()
	if err != nil {
		panic(err)
	}
	return id
}

// Parts ID 的组成部分
type Parts struct {
	Time     time.Time
	Node     int64
	Sequence int64
}

func Parse(id int64) Parts {
	return Parts{
		Time:     time.UnixMilli((id >> timeShift) + epoch).UTC(),
		Node:     (id >> nodeShift) & MaxNode,
		Sequence: id & maxSequence,
	}
}
