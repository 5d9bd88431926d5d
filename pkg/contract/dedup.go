package contract

// Deduplicator: 基于归一化指纹的精确去重。
// 约束：
// 1) Fingerprint 为纯函数（归一化 + 摘要），可并发调用；
// 2) Seen 记录并判定：首次出现返回 false，其后对同指纹恒返回 true；
//    非并发安全，由单一属主串行调用；
// 3) 仅存定长指纹，不存原文；内存与唯一记录数成正比。
type Deduplicator interface {
	Fingerprint(text string) Fingerprint
	Seen(fp Fingerprint) bool
	// Len 返回已记录的唯一指纹数。
	Len() int
}
