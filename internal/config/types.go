package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Source: 输入路径；"-" 表示 STDIN。
	Source string `json:"source"`
	// MinLength: 最小标量数；0 表示不过滤。合并语义上 -1 表示“未设置”。
	MinLength int `json:"min_length"`
	// KeywordsFile: 关键词文件路径；为空则跳过关键词阶段。
	KeywordsFile string `json:"keywords_file"`
	// OutputFile: 输出文件路径；为空则只统计不落盘（discard Writer）。
	OutputFile string `json:"output_file"`
	// Strict: UTF-8 解码失败是否致命。
	Strict      bool    `json:"strict"`
	Concurrency int     `json:"concurrency"`
	Logging     Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader  string `json:"reader"`
	Filter  string `json:"filter"`
	Matcher string `json:"matcher"`
	Dedup   string `json:"dedup"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader  json.RawMessage `json:"reader"`
	Filter  json.RawMessage `json:"filter"`
	Matcher json.RawMessage `json:"matcher"`
	Dedup   json.RawMessage `json:"dedup"`
	Writer  json.RawMessage `json:"writer"`
}
