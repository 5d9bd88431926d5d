package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"lmclean/internal/pipeline"
	"lmclean/pkg/contract"
	"lmclean/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Source) == "" {
		return fmt.Errorf("%w: source not set", contract.ErrConfigInvalid)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1", contract.ErrConfigInvalid)
	}
	if cfg.MinLength < 0 {
		return fmt.Errorf("%w: min_length must be >= 0", contract.ErrConfigInvalid)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("%w: reader %q not registered", contract.ErrConfigInvalid, name)
	}
	if name := effName(cfg.Components.Filter, d.Components.Filter); registry.Filter[name] == nil {
		return fmt.Errorf("%w: filter %q not registered", contract.ErrConfigInvalid, name)
	}
	if name := effName(cfg.Components.Matcher, d.Components.Matcher); registry.Matcher[name] == nil {
		return fmt.Errorf("%w: matcher %q not registered", contract.ErrConfigInvalid, name)
	}
	if name := effName(cfg.Components.Dedup, d.Components.Dedup); registry.Dedup[name] == nil {
		return fmt.Errorf("%w: dedup %q not registered", contract.ErrConfigInvalid, name)
	}
	if name := effName(cfg.Components.Writer, autoWriterName(cfg)); registry.Writer[name] == nil {
		return fmt.Errorf("%w: writer %q not registered", contract.ErrConfigInvalid, name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只做便捷字段注入后传 raw JSON。
// 返回的告警来自关键词文件装载期（坏条目），与运行期告警由调用方合并。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, []contract.Warning, error) {
	fail := func(err error) (pipeline.Components, pipeline.Settings, []contract.Warning, error) {
		return pipeline.Components{}, pipeline.Settings{}, nil, err
	}
	if err := Validate(cfg); err != nil {
		return fail(err)
	}

	// 有效名称
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	fn := effName(cfg.Components.Filter, d.Components.Filter)
	mn := effName(cfg.Components.Matcher, d.Components.Matcher)
	dn := effName(cfg.Components.Dedup, d.Components.Dedup)
	wn := effName(cfg.Components.Writer, autoWriterName(cfg))

	// 顶层便捷字段注入到对应 Options（不覆盖已显式给出的键）。
	rraw := cfg.Options.Reader
	if cfg.Strict {
		var err error
		if rraw, err = injectJSON(rraw, map[string]any{"strict": true}); err != nil {
			return fail(fmt.Errorf("%w: reader options: %v", contract.ErrConfigInvalid, err))
		}
	}
	fraw := cfg.Options.Filter
	if cfg.MinLength > 0 {
		var err error
		if fraw, err = injectJSON(fraw, map[string]any{"min_length": cfg.MinLength}); err != nil {
			return fail(fmt.Errorf("%w: filter options: %v", contract.ErrConfigInvalid, err))
		}
	}
	mraw := cfg.Options.Matcher
	if cfg.KeywordsFile != "" {
		var err error
		if mraw, err = injectJSON(mraw, map[string]any{"file": cfg.KeywordsFile}); err != nil {
			return fail(fmt.Errorf("%w: matcher options: %v", contract.ErrConfigInvalid, err))
		}
	}
	wraw := cfg.Options.Writer
	if wn == "discard" && cfg.Components.Writer == "" {
		// 自动回落到 discard 时忽略 fs 形状的 Writer Options（discard 无选项）。
		wraw = nil
	}
	if wn == "fs" && cfg.OutputFile != "" {
		var err error
		if wraw, err = injectJSON(wraw, map[string]any{"path": cfg.OutputFile}); err != nil {
			return fail(fmt.Errorf("%w: writer options: %v", contract.ErrConfigInvalid, err))
		}
	}

	// 构造实例
	r, err := registry.Reader[rn](rraw)
	if err != nil {
		return fail(fmt.Errorf("reader %q: %w", rn, err))
	}
	lf, err := registry.Filter[fn](fraw)
	if err != nil {
		return fail(fmt.Errorf("filter %q: %w", fn, err))
	}
	// 关键词阶段可选：既无关键词文件也无显式 Options 时整体跳过。
	var m contract.Matcher
	var warns []contract.Warning
	if len(mraw) > 0 {
		mm, ws, err := registry.Matcher[mn](mraw)
		if err != nil {
			return fail(fmt.Errorf("matcher %q: %w", mn, err))
		}
		m = mm
		warns = ws
	}
	dd, err := registry.Dedup[dn](cfg.Options.Dedup)
	if err != nil {
		return fail(fmt.Errorf("dedup %q: %w", dn, err))
	}
	w, err := registry.Writer[wn](wraw)
	if err != nil {
		return fail(fmt.Errorf("writer %q: %w", wn, err))
	}

	comp := pipeline.Components{
		Reader:  r,
		Length:  lf,
		Matcher: m,
		Dedup:   dd,
		Writer:  w,
	}
	set := pipeline.Settings{
		Source:      strings.TrimSpace(cfg.Source),
		Concurrency: cfg.Concurrency,
	}
	return comp, set, warns, nil
}

// autoWriterName: 未显式选择 Writer 时按 output_file 自动取 fs/discard。
func autoWriterName(cfg Config) string {
	if strings.TrimSpace(cfg.OutputFile) != "" {
		return "fs"
	}
	return "discard"
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

// injectJSON 将 kv 注入 raw（对象）中缺失的键；显式给出的键不覆盖。
func injectJSON(raw json.RawMessage, kv map[string]any) (json.RawMessage, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	for k, v := range kv {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return out, nil
}
