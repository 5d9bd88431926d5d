package pipeline

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"lmclean/pkg/contract"
)

// ---- 测试桩 ----

type stubReader struct {
	recs  []contract.Record
	warns []contract.Warning
	// onYield 在第 i 条（0 起）记录交付前调用，用于注入取消。
	onYield func(i int)
}

func (r *stubReader) Stream(ctx context.Context, _ string, warn contract.WarnFunc, yield func(contract.Record) error) error {
	for _, w := range r.warns {
		if warn != nil {
			warn(w)
		}
	}
	for i, rec := range r.recs {
		if r.onYield != nil {
			r.onYield(i)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := yield(rec); err != nil {
			return err
		}
	}
	return nil
}

type minLenFilter int

func (m minLenFilter) Accept(text string) bool {
	return int(m) <= 0 || len([]rune(text)) >= int(m)
}

type containsMatcher []string

func (m containsMatcher) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range m {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

type mapDedup struct {
	seen map[contract.Fingerprint]struct{}
}

func newMapDedup() *mapDedup { return &mapDedup{seen: make(map[contract.Fingerprint]struct{})} }

func (d *mapDedup) Fingerprint(text string) contract.Fingerprint {
	return md5.Sum([]byte(strings.ToLower(strings.TrimSpace(text))))
}

func (d *mapDedup) Seen(fp contract.Fingerprint) bool {
	if _, ok := d.seen[fp]; ok {
		return true
	}
	d.seen[fp] = struct{}{}
	return false
}

func (d *mapDedup) Len() int { return len(d.seen) }

type memWriter struct {
	mu        sync.Mutex
	lines     []string
	failAt    int // 第 n 次 Append 失败（1 起）；0 表示从不失败
	n         int
	closed    bool
	discarded bool
}

func (w *memWriter) Append(ctx context.Context, rec contract.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.n++
	if w.failAt > 0 && w.n >= w.failAt {
		return errors.New("sink full")
	}
	w.lines = append(w.lines, rec.Text)
	return nil
}

func (w *memWriter) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discarded = true
	return nil
}

func recs(texts ...string) []contract.Record {
	out := make([]contract.Record, len(texts))
	for i, t := range texts {
		out[i] = contract.Record{Line: int64(i + 1), Text: t}
	}
	return out
}

func baseComponents(r contract.Reader, w contract.Writer) Components {
	return Components{
		Reader:  r,
		Length:  minLenFilter(5),
		Matcher: containsMatcher{"spam"},
		Dedup:   newMapDedup(),
		Writer:  w,
	}
}

// ---- 用例 ----

func TestRunSerialOutcomes(t *testing.T) {
	rd := &stubReader{recs: recs(
		"hello world",       // 写出
		"hi",                // 长度拒绝
		"buy SPAM now",      // 关键词拒绝
		"Hello World  ",     // 重复拒绝（规范化后同指纹）
		"another fine line", // 写出
	)}
	w := &memWriter{}
	sum, err := Run(context.Background(), baseComponents(rd, w), Settings{Source: "mem"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != contract.StateCompleted {
		t.Fatalf("state=%s", sum.State)
	}
	want := contract.Stats{Read: 5, RejectedByLength: 1, RejectedByKeyword: 1, RejectedAsDuplicate: 1, Written: 2}
	if sum.Stats != want {
		t.Fatalf("stats=%+v want %+v", sum.Stats, want)
	}
	if !sum.Stats.Conserved() {
		t.Fatal("stats not conserved")
	}
	if strings.Join(w.lines, "|") != "hello world|another fine line" {
		t.Fatalf("lines=%q", w.lines)
	}
	if !w.closed || w.discarded {
		t.Fatalf("closed=%v discarded=%v", w.closed, w.discarded)
	}
}

func TestRunNilMatcherSkipsStage(t *testing.T) {
	rd := &stubReader{recs: recs("contains spam keyword")}
	w := &memWriter{}
	comp := baseComponents(rd, w)
	comp.Matcher = nil
	sum, err := Run(context.Background(), comp, Settings{Source: "mem"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.Written != 1 || sum.Stats.RejectedByKeyword != 0 {
		t.Fatalf("stats=%+v", sum.Stats)
	}
}

func TestRunDecodeWarningsOutsideConservation(t *testing.T) {
	rd := &stubReader{
		recs:  recs("long enough line a", "long enough line b"),
		warns: []contract.Warning{{Code: contract.WarnDecode, Line: 2, Msg: "invalid utf-8"}},
	}
	w := &memWriter{}
	sum, err := Run(context.Background(), baseComponents(rd, w), Settings{Source: "mem"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.DecodeSkipped != 1 || len(sum.Warnings) != 1 {
		t.Fatalf("skipped=%d warnings=%v", sum.Stats.DecodeSkipped, sum.Warnings)
	}
	if !sum.Stats.Conserved() || sum.Stats.Read != 2 {
		t.Fatalf("stats=%+v", sum.Stats)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rd := &stubReader{
		recs: recs("first long line", "second long line", "third long line"),
		onYield: func(i int) {
			if i == 2 {
				cancel()
			}
		},
	}
	w := &memWriter{}
	sum, err := Run(ctx, baseComponents(rd, w), Settings{Source: "mem"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if sum.State != contract.StateCancelled {
		t.Fatalf("state=%s", sum.State)
	}
	// 部分输出保留并冲刷。
	if !w.closed || w.discarded {
		t.Fatalf("closed=%v discarded=%v", w.closed, w.discarded)
	}
	if len(w.lines) != 2 {
		t.Fatalf("lines=%q", w.lines)
	}
}

func TestRunWriterFailureDiscards(t *testing.T) {
	rd := &stubReader{recs: recs("first long line", "second long line")}
	w := &memWriter{failAt: 2}
	sum, err := Run(context.Background(), baseComponents(rd, w), Settings{Source: "mem"}, nil)
	if err == nil {
		t.Fatal("expected writer error")
	}
	if sum.State != contract.StateFailed {
		t.Fatalf("state=%s", sum.State)
	}
	if !w.discarded {
		t.Fatal("failed run must discard the sink")
	}
}

func TestRunSanity(t *testing.T) {
	w := &memWriter{}
	comp := baseComponents(&stubReader{}, w)
	comp.Length = nil
	if sum, err := Run(context.Background(), comp, Settings{Source: "mem"}, nil); err == nil || sum.State != contract.StateFailed {
		t.Fatalf("sum=%+v err=%v", sum, err)
	}
	comp = baseComponents(&stubReader{}, w)
	if sum, err := Run(context.Background(), comp, Settings{Source: "  "}, nil); err == nil || sum.State != contract.StateFailed {
		t.Fatalf("sum=%+v err=%v", sum, err)
	}
}

// 并行模式必须与串行完全同迹：相同统计、相同写出序列（首现按原始行序）。
func TestRunParallelMatchesSerial(t *testing.T) {
	var texts []string
	for i := 0; i < 300; i++ {
		switch {
		case i%7 == 0:
			texts = append(texts, "hi") // 长度拒绝
		case i%11 == 0:
			texts = append(texts, fmt.Sprintf("spam offer %d", i)) // 关键词拒绝
		default:
			texts = append(texts, fmt.Sprintf("record body number %d", i%50)) // 制造重复
		}
	}

	run := func(conc int) (contract.Summary, []string) {
		rd := &stubReader{recs: recs(texts...)}
		w := &memWriter{}
		sum, err := Run(context.Background(), baseComponents(rd, w), Settings{Source: "mem", Concurrency: conc}, nil)
		if err != nil {
			t.Fatalf("conc=%d: %v", conc, err)
		}
		return sum, w.lines
	}

	serialSum, serialLines := run(1)
	for _, conc := range []int{2, 4, 8} {
		sum, lines := run(conc)
		if sum.Stats != serialSum.Stats {
			t.Fatalf("conc=%d stats=%+v want %+v", conc, sum.Stats, serialSum.Stats)
		}
		if strings.Join(lines, "\n") != strings.Join(serialLines, "\n") {
			t.Fatalf("conc=%d output diverges from serial", conc)
		}
	}
}

func TestRunParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var texts []string
	for i := 0; i < 500; i++ {
		texts = append(texts, fmt.Sprintf("unique record line %d", i))
	}
	rd := &stubReader{
		recs: recs(texts...),
		onYield: func(i int) {
			if i == 250 {
				cancel()
			}
		},
	}
	w := &memWriter{}
	sum, err := Run(ctx, baseComponents(rd, w), Settings{Source: "mem", Concurrency: 4}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if sum.State != contract.StateCancelled {
		t.Fatalf("state=%s", sum.State)
	}
	if !w.closed {
		t.Fatal("cancelled run must flush the sink")
	}
	// 已提交的前缀保持原始顺序。
	for i, line := range w.lines {
		if line != fmt.Sprintf("unique record line %d", i) {
			t.Fatalf("line[%d]=%q out of order", i, line)
		}
	}
}
