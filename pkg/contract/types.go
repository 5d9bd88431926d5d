package contract

// Record: 流水线中的原子输入行（不跨阶段共享，不保留回引）。
// 约束：
// - Line 为源文件内自 1 起始的原始行号，严格递增（被跳过的行同样占号）；
// - Text 为去除行终止符后的最小必需文本（经 CRLF→LF 归一），不做业务性清洗；
// - 生命周期仅限在途：被任一阶段拒绝或被 Writer 提交后即弃。
type Record struct {
	Line int64
	Text string
}

// Fingerprint: 归一化文本的 128 位摘要，用作去重键。
// 指纹相同即视为重复；碰撞概率受摘要宽度约束，属可接受风险而非正确性缺陷。
type Fingerprint [16]byte
