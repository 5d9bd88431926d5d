package contract

import "context"

// Writer: 将幸存记录按接受顺序追加到输出介质。
// 约束：
// 1) 单写者；Append 按调用顺序落盘，维持首次出现顺序；
// 2) 流式写入（O(1) 额外内存），不读取/修改业务内容；
// 3) Close 返回前所有已 Append 内容必须冲刷/持久；
// 4) ctx 取消/超时需尽快返回；错误直接上抛（不做重试）。
type Writer interface {
	Append(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
