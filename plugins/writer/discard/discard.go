package discard

import (
	"context"

	"lmclean/pkg/contract"
)

// Sink: 未配置输出时的丢弃 Writer。
// 记录被“接受”但不落盘；统计仍由流水线照常累计（与可选保存的源语义对齐）。
type Sink struct {
	count int64
}

// New 创建丢弃 Writer。
func New() *Sink { return &Sink{} }

var _ contract.Writer = (*Sink)(nil)

func (s *Sink) Append(ctx context.Context, rec contract.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.count++
	return nil
}

func (s *Sink) Close(ctx context.Context) error { return nil }

// Count 返回已接受的记录数。
func (s *Sink) Count() int64 { return s.count }
