package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"lmclean/internal/diag"
	"lmclean/pkg/contract"
)

// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - 顺序门闩：并行模式下按 Reader 分配的连续序号严格递增提交；乱序结果暂存，连续冲刷。
//   去重与落盘由唯一的收集者执行，首现语义因此等同于串行模式（按原始行序）。
// - 首错取消：任一阶段出现错误，errgroup 取消整体；排空后返回首错。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Length contract.LengthFilter
	// Matcher 可为 nil：未配置关键词表时跳过该阶段。
	Matcher contract.Matcher
	Dedup   contract.Deduplicator
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Source string
	// Concurrency<=1 为串行模式。
	Concurrency int
}

// Run 执行完整流水线：Reader → LengthFilter → (Matcher) → Dedup → Writer。
// 约束：
// - 每条记录恰好归入一个去向（写出或三类拒绝之一）；
// - 取消后部分输出保留，统计覆盖已处理记录；
// - 返回的 Summary 总处于终态（Completed/Failed/Cancelled）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Summary, error) {
	sum := contract.Summary{State: contract.StateRunning}
	if err := sanity(comp, set); err != nil {
		sum.State = contract.StateFailed
		return sum, fmt.Errorf("sanity: %w", err)
	}

	rtimer := logger.StartWithKV("pipeline", "run", map[string]string{
		"source":      set.Source,
		"concurrency": fmt.Sprintf("%d", effConcurrency(set)),
	})

	var stats contract.Stats
	var warns []contract.Warning
	// warn 仅由 Reader 所在 goroutine 调用；并行模式下在 join 之后读取。
	warn := func(w contract.Warning) {
		warns = append(warns, w)
		if w.Code == contract.WarnDecode {
			stats.DecodeSkipped++
		}
	}

	var runErr error
	if effConcurrency(set) <= 1 {
		runErr = runSerial(ctx, comp, set, warn, &stats)
	} else {
		runErr = runParallel(ctx, comp, set, warn, &stats)
	}

	// 终态判定与 Writer 收尾。
	switch {
	case runErr == nil:
		if err := comp.Writer.Close(context.Background()); err != nil {
			runErr = fmt.Errorf("writer close: %w", err)
			sum.State = contract.StateFailed
			break
		}
		if !stats.Conserved() {
			runErr = fmt.Errorf("%w: stats not conserved: %+v", contract.ErrInvariantViolation, stats)
			sum.State = contract.StateFailed
			break
		}
		sum.State = contract.StateCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		// 取消：冲刷并保留已写出部分。收尾失败不得掩盖取消原因。
		if cerr := comp.Writer.Close(context.Background()); cerr != nil {
			logger.Error("writer", diag.Classify(cerr), "close after cancel: "+cerr.Error(), nil)
		}
		sum.State = contract.StateCancelled
	default:
		// 失败：可丢弃的 Writer 丢弃（原子模式不产出目标文件），否则尽量冲刷。
		if d, ok := comp.Writer.(interface{ Discard() error }); ok {
			if derr := d.Discard(); derr != nil {
				logger.Error("writer", diag.Classify(derr), "discard after failure: "+derr.Error(), nil)
			}
		} else if cerr := comp.Writer.Close(context.Background()); cerr != nil {
			logger.Error("writer", diag.Classify(cerr), "close after failure: "+cerr.Error(), nil)
		}
		sum.State = contract.StateFailed
	}

	sum.Stats = stats
	sum.Warnings = warns

	if runErr != nil {
		logger.ErrorWithKV("pipeline", diag.Classify(runErr), runErr.Error(), map[string]string{
			"state": string(sum.State),
		})
		return sum, runErr
	}
	rtimer.Finish("run", stats.Written)
	return sum, nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Length == nil || c.Dedup == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if strings.TrimSpace(s.Source) == "" {
		return errors.New("pipeline: empty source")
	}
	return nil
}

func effConcurrency(s Settings) int {
	if s.Concurrency < 1 {
		return 1
	}
	return s.Concurrency
}

// runSerial 同步拉取：逐条判定并立即写出。
func runSerial(ctx context.Context, comp Components, set Settings, warn contract.WarnFunc, stats *contract.Stats) error {
	return comp.Reader.Stream(ctx, set.Source, warn, func(rec contract.Record) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		stats.Read++
		switch {
		case !comp.Length.Accept(rec.Text):
			stats.RejectedByLength++
		case comp.Matcher != nil && comp.Matcher.Matches(rec.Text):
			stats.RejectedByKeyword++
		case comp.Dedup.Seen(comp.Dedup.Fingerprint(rec.Text)):
			stats.RejectedAsDuplicate++
		default:
			if err := comp.Writer.Append(ctx, rec); err != nil {
				return fmt.Errorf("writer append: %w", err)
			}
			stats.Written++
		}
		if t := diag.GetTerminal(); t != nil {
			t.Progress(stats.Read, stats.Written, int(stats.DecodeSkipped))
		}
		return nil
	})
}

// 并行模式下单条记录的判定去向。去重留给收集者：
// 首现语义依赖全序提交，不能在 worker 侧判定。
type verdict uint8

const (
	verdictKeep verdict = iota
	verdictLength
	verdictKeyword
)

type job struct {
	seq int64
	rec contract.Record
}

type result struct {
	seq int64
	rec contract.Record
	v   verdict
	fp  contract.Fingerprint
}

// runParallel 读取端分配连续序号并扇出；worker 做纯计算（长度/关键词判定与指纹）；
// 唯一的收集者持有 SeenSet 与 Writer，经顺序门闩按序提交。
func runParallel(ctx context.Context, comp Components, set Settings, warn contract.WarnFunc, stats *contract.Stats) error {
	n := effConcurrency(set)
	eg, ctx := errgroup.WithContext(ctx)
	// 有界通道：2×并发度，形成自然背压。
	jobs := make(chan job, n*2)
	results := make(chan result, n*2)

	// 生产者：序号连续递增（与行号解耦——跳过的行不产生记录）。
	eg.Go(func() error {
		defer close(jobs)
		var seq int64
		return comp.Reader.Stream(ctx, set.Source, warn, func(rec contract.Record) error {
			j := job{seq: seq, rec: rec}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- j:
				seq++
				return nil
			}
		})
	})

	// workers：无共享可变状态（Matcher 自动机与 Fingerprint 均为只读/纯函数）。
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				r := result{seq: j.seq, rec: j.rec, v: verdictKeep}
				switch {
				case !comp.Length.Accept(j.rec.Text):
					r.v = verdictLength
				case comp.Matcher != nil && comp.Matcher.Matches(j.rec.Text):
					r.v = verdictKeyword
				default:
					r.fp = comp.Dedup.Fingerprint(j.rec.Text)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case results <- r:
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// 收集者：顺序门闩。buf 暂存乱序结果；expect 连续冲刷。
	eg.Go(func() error {
		expect := int64(0)
		buf := make(map[int64]result)
		commit := func(r result) error {
			stats.Read++
			switch r.v {
			case verdictLength:
				stats.RejectedByLength++
			case verdictKeyword:
				stats.RejectedByKeyword++
			default:
				if comp.Dedup.Seen(r.fp) {
					stats.RejectedAsDuplicate++
					break
				}
				if err := comp.Writer.Append(ctx, r.rec); err != nil {
					return fmt.Errorf("writer append: %w", err)
				}
				stats.Written++
			}
			return nil
		}
		for r := range results {
			buf[r.seq] = r
			for {
				next, ok := buf[expect]
				if !ok {
					break
				}
				delete(buf, expect)
				if err := commit(next); err != nil {
					return err
				}
				expect++
			}
			if t := diag.GetTerminal(); t != nil {
				t.Progress(stats.Read, stats.Written, 0)
			}
		}
		return nil
	})

	return eg.Wait()
}
