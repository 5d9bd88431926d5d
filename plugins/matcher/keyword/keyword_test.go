package keyword

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lmclean/pkg/contract"
)

func mustMatcher(t *testing.T, kws []string, wholeWord bool) *Matcher {
	t.Helper()
	m, warns := NewFromKeywords(kws, 0, wholeWord)
	if len(warns) != 0 {
		t.Fatalf("unexpected load warnings: %v", warns)
	}
	return m
}

func TestWholeWordMatching(t *testing.T) {
	m := mustMatcher(t, []string{"spam"}, true)
	cases := []struct {
		text string
		want bool
	}{
		{"spamalot", false},        // 非整词
		{"eat spam now", true},     // 整词
		{"SPAM", true},             // 大小写不敏感
		{"spam", true},             // 串端即边界
		{"(spam)", true},           // 标点即边界
		{"spam,", true},
		{"despamify", false},
		{"spam3", false},           // 数字视为词内字符
		{"no hit here", false},
		{"", false},
	}
	for _, c := range cases {
		if got := m.Matches(c.text); got != c.want {
			t.Errorf("Matches(%q)=%v want %v", c.text, got, c.want)
		}
	}
}

func TestSubstringMode(t *testing.T) {
	// whole_word=false 退化为纯子串包含。
	m := mustMatcher(t, []string{"spam"}, false)
	if !m.Matches("spamalot") {
		t.Fatal("substring mode should match spamalot")
	}
}

func TestWholeWordRepeatedOccurrence(t *testing.T) {
	// 首次出现非整词、后续出现整词时仍须命中。
	m := mustMatcher(t, []string{"spam"}, true)
	if !m.Matches("spamalot serves spam daily") {
		t.Fatal("later whole-word occurrence must match")
	}
}

func TestEmptySetNeverMatches(t *testing.T) {
	m, warns, err := New(nil)
	if err != nil || len(warns) != 0 {
		t.Fatalf("New(nil): warns=%v err=%v", warns, err)
	}
	for _, s := range []string{"", "anything", "spam"} {
		if m.Matches(s) {
			t.Fatalf("empty set matched %q", s)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("Len()=%d want 0", m.Len())
	}
}

func TestLoadDedupAndWarnings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.txt")
	content := "spam\n\nSPAM\n# comment line\nx\nham\nbad word\n\xff\xfe\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m, warns, err := New(&Options{File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// spam/SPAM 去重为一；x 过短；注释与空行静默跳过；非 UTF-8 告警。
	if got := m.Len(); got != 3 { // spam, ham, bad word
		t.Fatalf("Len()=%d want 3", got)
	}
	if len(warns) != 2 {
		t.Fatalf("warnings=%d want 2: %v", len(warns), warns)
	}
	for _, w := range warns {
		if w.Code != contract.WarnKeywordEntry {
			t.Fatalf("warning code=%q", w.Code)
		}
	}
	if !m.Matches("such a bad word indeed") {
		t.Fatal("multi-word keyword should match as phrase")
	}
	if !m.Matches("HAM sandwich") {
		t.Fatal("case-insensitive after dedup")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := New(&Options{File: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Fatal("missing keywords file must error")
	}
}

func TestMinPatternLen(t *testing.T) {
	m, warns := NewFromKeywords([]string{"a", "ab", "abc"}, 3, true)
	if m.Len() != 1 {
		t.Fatalf("Len()=%d want 1", m.Len())
	}
	if len(warns) != 2 {
		t.Fatalf("warnings=%d want 2", len(warns))
	}
}

func TestMatchesConcurrent(t *testing.T) {
	// 自动机被多 worker 共享；并发调用不得丢失或虚构命中（-race 下亦须干净）。
	m := mustMatcher(t, []string{"spam", "bad word", "垃圾"}, true)
	texts := make([]string, 0, 400)
	wants := make([]bool, 0, 400)
	for i := 0; i < 100; i++ {
		texts = append(texts, fmt.Sprintf("line %d eat spam now", i))
		wants = append(wants, true)
		texts = append(texts, fmt.Sprintf("line %d spamalot", i))
		wants = append(wants, false)
		texts = append(texts, fmt.Sprintf("line %d a bad word here", i))
		wants = append(wants, true)
		texts = append(texts, fmt.Sprintf("line %d clean enough", i))
		wants = append(wants, false)
	}
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan string, workers)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(off int) {
			defer wg.Done()
			for i := range texts {
				k := (i + off) % len(texts)
				if got := m.Matches(texts[k]); got != wants[k] {
					select {
					case errs <- fmt.Sprintf("Matches(%q)=%v want %v", texts[k], got, wants[k]):
					default:
					}
					return
				}
			}
		}(w * 37)
	}
	wg.Wait()
	close(errs)
	if msg, ok := <-errs; ok {
		t.Fatal(msg)
	}
}

func TestUnicodeKeywords(t *testing.T) {
	m, _ := NewFromKeywords([]string{"垃圾"}, 2, true)
	// CJK 两侧通常无空格；相邻为字母数字之外的 CJK 仍视为边界字符吗？
	// 不是：CJK 为 Letter，整词语义下要求非字母数字边界。
	if m.Matches("这是垃圾内容") {
		t.Fatal("CJK surrounded by letters is not a whole word")
	}
	if !m.Matches("这是 垃圾 内容") {
		t.Fatal("space-bounded CJK keyword should match")
	}
}
