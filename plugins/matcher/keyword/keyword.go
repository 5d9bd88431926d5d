package keyword

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"lmclean/pkg/contract"
)

// Options 为关键词匹配器配置。
type Options struct {
	// File: 关键词文件路径（每行一个；空行与 # 注释行跳过）。
	// 为空时构造空匹配器（永不命中）。
	File string `json:"file"`
	// MinPatternLen: 低于该长度（标量数）的关键词在装载期拒绝并告警。
	// 默认 2（即单字符关键词被拒，避免病态误报率）。
	MinPatternLen int `json:"min_pattern_len"`
	// WholeWord: 是否要求词边界（两侧为非字母数字或串端）。默认 true；
	// 显式 false 退化为纯子串包含（原始引擎语义）。
	WholeWord *bool `json:"whole_word,omitempty"`
}

// Matcher 基于 Aho-Corasick 自动机的多模式匹配器。
// 自动机对小写化文本做一次 O(len) 扫描给出命中的模式集合；
// 整词模式下仅对命中的少量模式逐一做边界校验。
// 构造后只读，可安全共享。
type Matcher struct {
	ac        *ahocorasick.Matcher
	patterns  []string
	wholeWord bool
}

const defaultMinPatternLen = 2

// New 构造 Matcher 并装载关键词文件。
// 文件打开失败为错误（配置期致命）；坏条目仅产生告警，永不致命。
func New(opts *Options) (*Matcher, []contract.Warning, error) {
	minLen := defaultMinPatternLen
	whole := true
	var file string
	if opts != nil {
		if opts.MinPatternLen > 0 {
			minLen = opts.MinPatternLen
		}
		if opts.WholeWord != nil {
			whole = *opts.WholeWord
		}
		file = strings.TrimSpace(opts.File)
	}
	if file == "" {
		m, _ := build(nil, minLen, whole)
		return m, nil, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("open keywords: %w", err)
	}
	defer f.Close()

	var entries []entry
	sc := bufio.NewScanner(f)
	var line int64
	for sc.Scan() {
		line++
		entries = append(entries, entry{line: line, text: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read keywords: %w", err)
	}
	m, warns := build(entries, minLen, whole)
	return m, warns, nil
}

// NewFromKeywords 直接以关键词列表构造（装配便利与测试）。
func NewFromKeywords(keywords []string, minLen int, wholeWord bool) (*Matcher, []contract.Warning) {
	if minLen <= 0 {
		minLen = defaultMinPatternLen
	}
	entries := make([]entry, 0, len(keywords))
	for i, k := range keywords {
		entries = append(entries, entry{line: int64(i + 1), text: k})
	}
	return build(entries, minLen, wholeWord)
}

type entry struct {
	line int64
	text string
}

// build 归一化并去重关键词集：小写折叠、修剪空白、跳过空行/注释、
// 拒绝过短与非 UTF-8 条目（告警）、重复条目静默去重。
func build(entries []entry, minLen int, wholeWord bool) (*Matcher, []contract.Warning) {
	var warns []contract.Warning
	seen := make(map[string]struct{}, len(entries))
	pats := make([]string, 0, len(entries))
	for _, e := range entries {
		k := strings.TrimSpace(e.text)
		if k == "" || strings.HasPrefix(k, "#") {
			continue
		}
		if !utf8.ValidString(k) {
			warns = append(warns, contract.Warning{
				Code: contract.WarnKeywordEntry, Line: e.line,
				Msg: "invalid utf-8 keyword, skipped",
			})
			continue
		}
		k = strings.ToLower(k)
		if utf8.RuneCountInString(k) < minLen {
			warns = append(warns, contract.Warning{
				Code: contract.WarnKeywordEntry, Line: e.line,
				Msg: fmt.Sprintf("keyword %q shorter than %d, skipped", k, minLen),
			})
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		pats = append(pats, k)
	}
	m := &Matcher{patterns: pats, wholeWord: wholeWord}
	if len(pats) > 0 {
		m.ac = ahocorasick.NewStringMatcher(pats)
	}
	return m, warns
}

var _ contract.Matcher = (*Matcher)(nil)

// Len 返回装载后的有效关键词数。
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Matches: 文本是否命中任一关键词。大小写不敏感；整词模式要求边界。
// 空关键词集恒为 false。
func (m *Matcher) Matches(text string) bool {
	if m == nil || m.ac == nil {
		return false
	}
	lower := strings.ToLower(text)
	// MatchThreadSafe: 自动机被多 worker 共享，Match 变体会写入内部代计数器。
	hits := m.ac.MatchThreadSafe([]byte(lower))
	if len(hits) == 0 {
		return false
	}
	if !m.wholeWord {
		return true
	}
	for _, idx := range hits {
		if wholeWordIn(lower, m.patterns[idx]) {
			return true
		}
	}
	return false
}

// wholeWordIn: kw 是否以整词形式出现于 s（两侧为非字母数字或串端）。
// 仅对自动机已命中的模式调用，出现次数通常极少。
func wholeWordIn(s, kw string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		from = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

// isWordRune: 字母或数字视为词内字符。
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
