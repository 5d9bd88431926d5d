package diag

import (
	"context"
	"errors"
	"os"

	"lmclean/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeIO        Code = "io"
	CodeDecode    Code = "decode"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeConfig    Code = "config"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 解码
	if errors.Is(err, contract.ErrDecode) {
		return CodeDecode
	}
	// 配置
	if errors.Is(err, contract.ErrConfigInvalid) {
		return CodeConfig
	}
	// 不变量
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O
	if errors.Is(err, contract.ErrSourceUnreadable) || errors.Is(err, contract.ErrSinkUnwritable) {
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
