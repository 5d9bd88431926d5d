package contract

// Matcher: 判定文本是否命中任一配置关键词。
// 约束：
// 1) 匹配耗时与文本长度成正比，与关键词集大小无关；
// 2) 构造后只读，可跨 goroutine 安全共享；
// 3) 空关键词集永不命中。
type Matcher interface {
	Matches(text string) bool
}
