package testdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "lmclean/internal/config"
	"lmclean/internal/pipeline"
	"lmclean/pkg/contract"
)

func baseConfig(input, output string) cfgpkg.Config {
	cfg := cfgpkg.Defaults()
	cfg.Source = input
	cfg.OutputFile = output
	cfg.Logging.Level = "error"
	return cfg
}

// runClean 装配并执行完整流水线。
func runClean(t *testing.T, cfg cfgpkg.Config) (contract.Summary, error) {
	t.Helper()
	comp, set, loadWarns, err := cfgpkg.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	sum, err := pipeline.Run(context.Background(), comp, set, nil)
	sum.Warnings = append(loadWarns, sum.Warnings...)
	return sum, err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEndToEndBasic(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt",
		"short\n"+
			"this line is bad indeed\n"+
			"a perfectly clean line\n"+
			"a perfectly clean line\n")
	kws := writeFile(t, dir, "kw.txt", "bad\n")
	out := filepath.Join(dir, "out.txt")

	cfg := baseConfig(in, out)
	cfg.MinLength = 10
	cfg.KeywordsFile = kws

	sum, err := runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != contract.StateCompleted {
		t.Fatalf("state=%s", sum.State)
	}
	want := contract.Stats{Read: 4, RejectedByLength: 1, RejectedByKeyword: 1, RejectedAsDuplicate: 1, Written: 1}
	if sum.Stats != want {
		t.Fatalf("stats=%+v want %+v", sum.Stats, want)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a perfectly clean line\n" {
		t.Fatalf("output=%q", b)
	}
}

func TestEndToEndDecodeSkip(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "a clean long line\n\xff\xfe broken\nanother clean long line\n")
	out := filepath.Join(dir, "out.txt")

	cfg := baseConfig(in, out)
	sum, err := runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.Read != 2 || sum.Stats.Written != 2 || sum.Stats.DecodeSkipped != 1 {
		t.Fatalf("stats=%+v", sum.Stats)
	}
	if len(sum.Warnings) != 1 || sum.Warnings[0].Code != contract.WarnDecode || sum.Warnings[0].Line != 2 {
		t.Fatalf("warnings=%v", sum.Warnings)
	}
}

func TestEndToEndStrictDecodeFails(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "ok line content\n\xff\xfe\n")
	out := filepath.Join(dir, "out.txt")

	cfg := baseConfig(in, out)
	cfg.Strict = true
	sum, err := runClean(t, cfg)
	if !errors.Is(err, contract.ErrDecode) {
		t.Fatalf("err=%v want ErrDecode", err)
	}
	if sum.State != contract.StateFailed {
		t.Fatalf("state=%s", sum.State)
	}
}

func TestEndToEndSubstringMode(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "the spamalot festival\n")
	kws := writeFile(t, dir, "kw.txt", "spam\n")
	out := filepath.Join(dir, "out.txt")

	// 整词模式（默认）：spamalot 不命中。
	cfg := baseConfig(in, out)
	cfg.KeywordsFile = kws
	sum, err := runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.Written != 1 {
		t.Fatalf("whole-word stats=%+v", sum.Stats)
	}

	// 子串模式：命中。
	cfg = baseConfig(in, filepath.Join(dir, "out2.txt"))
	cfg.KeywordsFile = kws
	cfg.Options.Matcher = json.RawMessage(fmt.Sprintf(`{"file":%q,"whole_word":false}`, kws))
	sum, err = runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.RejectedByKeyword != 1 {
		t.Fatalf("substring stats=%+v", sum.Stats)
	}
}

func TestEndToEndAtomicWriter(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "one clean long line\n")
	out := filepath.Join(dir, "out.txt")

	cfg := baseConfig(in, out)
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"path":%q,"atomic":true}`, out))
	cfg.Components.Writer = "fs"
	sum, err := runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.Written != 1 {
		t.Fatalf("stats=%+v", sum.Stats)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "one clean long line\n" {
		t.Fatalf("output=%q", b)
	}
	// 临时文件不残留
	ents, _ := os.ReadDir(dir)
	for _, e := range ents {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp residue: %s", e.Name())
		}
	}
}

func TestEndToEndCommentPrefix(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "keep the payload # trailing note\nonly a comment follows # x\n")
	out := filepath.Join(dir, "out.txt")

	cfg := baseConfig(in, out)
	cfg.Options.Reader = json.RawMessage(`{"comment_prefix":"#"}`)
	sum, err := runClean(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Stats.Written != 2 {
		t.Fatalf("stats=%+v", sum.Stats)
	}
	b, _ := os.ReadFile(out)
	if !strings.HasPrefix(string(b), "keep the payload ") || strings.Contains(string(b), "trailing note") {
		t.Fatalf("output=%q", b)
	}
}

func TestEndToEndParallelIdentical(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		switch {
		case i%9 == 0:
			sb.WriteString("tiny\n")
		case i%13 == 0:
			fmt.Fprintf(&sb, "forbidden term appears %d\n", i)
		default:
			fmt.Fprintf(&sb, "stable corpus line payload %d\n", i%400)
		}
	}
	in := writeFile(t, dir, "in.txt", sb.String())
	kws := writeFile(t, dir, "kw.txt", "forbidden\n")

	run := func(conc int, out string) (contract.Summary, []byte) {
		cfg := baseConfig(in, out)
		cfg.MinLength = 8
		cfg.KeywordsFile = kws
		cfg.Concurrency = conc
		sum, err := runClean(t, cfg)
		if err != nil {
			t.Fatalf("conc=%d: %v", conc, err)
		}
		b, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		return sum, b
	}

	serialSum, serialOut := run(1, filepath.Join(dir, "out-1.txt"))
	for _, conc := range []int{4, 16} {
		sum, out := run(conc, filepath.Join(dir, fmt.Sprintf("out-%d.txt", conc)))
		if sum.Stats != serialSum.Stats {
			t.Fatalf("conc=%d stats=%+v want %+v", conc, sum.Stats, serialSum.Stats)
		}
		if string(out) != string(serialOut) {
			t.Fatalf("conc=%d output diverges from serial", conc)
		}
	}
}
