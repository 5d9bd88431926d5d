package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），不落盘（只统计）；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值，键全部列出便于按需修改。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Source:       "-",
		MinLength:    0,
		KeywordsFile: "",
		OutputFile:   "",
		Strict:       false,
		Concurrency:  d.Concurrency,
		Logging:      Logging{Level: "info"},
		Components: Components{
			Reader:  d.Components.Reader,
			Filter:  d.Components.Filter,
			Matcher: d.Components.Matcher,
			Dedup:   d.Components.Dedup,
			// Writer 留空：按 output_file 自动选择 fs/discard。
			Writer: "",
		},
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "max_line_bytes": 16777216,
  "read_ahead": true,
  "strict": false,
  "comment_prefix": ""
}`)
	cfg.Options.Filter = json.RawMessage(`{
  "min_length": 0
}`)
	cfg.Options.Matcher = json.RawMessage(`{
  "file": "",
  "min_pattern_len": 2,
  "whole_word": true
}`)
	cfg.Options.Dedup = json.RawMessage(`{
  "case_fold": true,
  "collapse_space": true
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "path": "",
  "atomic": false,
  "perm_file": 0,
  "buf_size": 65536
}`)
	return cfg
}
