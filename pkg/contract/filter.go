package contract

// LengthFilter: 基于 Unicode 标量数的长度谓词。
// 纯函数、无失败模式；作为最廉价阶段最先应用。
type LengthFilter interface {
	Accept(text string) bool
}
