package fingerprint

import (
	"crypto/md5"
	"strings"
	"unicode"

	"lmclean/pkg/contract"
)

// Options 为指纹去重器配置。归一化策略是显式、文档化的：
// 每条记录在指纹化前一致地经过 修剪 →（可选）小写折叠 →（可选）空白折叠。
type Options struct {
	// CaseFold: 指纹前按小写折叠（大小写不同视为同一记录）。默认 true。
	CaseFold *bool `json:"case_fold,omitempty"`
	// CollapseSpace: 内部空白连串折叠为单个空格。默认 true。
	CollapseSpace *bool `json:"collapse_space,omitempty"`
}

// Set 为单次运行内的精确去重器：仅存 128 位指纹，不存原文。
// 内存 O(唯一记录数 × 指纹宽)；随进程结束销毁，不跨运行持久。
// 非并发安全：由单一属主（流水线收集器）串行调用 Seen。
type Set struct {
	caseFold bool
	collapse bool
	seen     map[contract.Fingerprint]struct{}
}

// New 创建指纹去重器。
func New(opts *Options) *Set {
	cf := true
	cs := true
	if opts != nil {
		if opts.CaseFold != nil {
			cf = *opts.CaseFold
		}
		if opts.CollapseSpace != nil {
			cs = *opts.CollapseSpace
		}
	}
	return &Set{caseFold: cf, collapse: cs, seen: make(map[contract.Fingerprint]struct{})}
}

var _ contract.Deduplicator = (*Set)(nil)

// Normalize 返回文本的确定性归一化形式（指纹的输入）。
// 规则：U+00A0 统一替换为普通空格（对齐原始引擎行为）；修剪首尾空白；
// 按配置小写折叠与内部空白折叠。
func (s *Set) Normalize(text string) string {
	if s.caseFold {
		text = strings.ToLower(text)
	}
	if strings.ContainsRune(text, ' ') {
		text = strings.ReplaceAll(text, " ", " ")
	}
	text = strings.TrimSpace(text)
	if !s.collapse || !strings.ContainsFunc(text, unicode.IsSpace) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Fingerprint: 归一化文本的 md5 摘要（128 位）。纯函数，可并发调用。
func (s *Set) Fingerprint(text string) contract.Fingerprint {
	return contract.Fingerprint(md5.Sum([]byte(s.Normalize(text))))
}

// Seen 记录并判定；首次出现返回 false。单一属主串行调用。
func (s *Set) Seen(fp contract.Fingerprint) bool {
	if _, ok := s.seen[fp]; ok {
		return true
	}
	s.seen[fp] = struct{}{}
	return false
}

// Len 返回已记录的唯一指纹数。
func (s *Set) Len() int { return len(s.seen) }
