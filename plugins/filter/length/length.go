package length

import (
	"unicode/utf8"

	"lmclean/pkg/contract"
)

// Options 为长度过滤器配置。
type Options struct {
	// MinLength: 记录最小长度（Unicode 标量数，非字节）。0 表示不过滤。
	MinLength int `json:"min_length"`
}

// Filter 实现最小长度谓词。
type Filter struct {
	min int
}

// New 创建长度过滤器。
func New(opts *Options) *Filter {
	m := 0
	if opts != nil && opts.MinLength > 0 {
		m = opts.MinLength
	}
	return &Filter{min: m}
}

var _ contract.LengthFilter = (*Filter)(nil)

// Accept: 长度（按 Unicode 标量计）≥ MinLength 时为真。纯函数。
func (f *Filter) Accept(text string) bool {
	if f.min <= 0 {
		return true
	}
	return utf8.RuneCountInString(text) >= f.min
}
