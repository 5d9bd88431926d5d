package contract

import "context"

// WarnFunc: 非致命告警回调（解码跳行、关键词文件坏条目等）。
// 实现不得借此中断流；中断只能经由返回错误。
type WarnFunc func(w Warning)

// Reader: 输入源抽象（单个本地文件，或 "-" 表示 STDIN）。
// 约束：
// 1) 流式读取，逐行回调 yield；内存受一个缓冲块加最长行约束；
// 2) Line 自 1 严格递增；解码被跳过的行同样消耗行号；
// 3) 仅做行切分、CRLF→LF 归一与 UTF-8 校验，不做业务过滤；
// 4) 不在内部起并发；yield 返回错误即终止遍历并原样上抛。
type Reader interface {
	Stream(ctx context.Context, source string, warn WarnFunc, yield func(Record) error) error
}
