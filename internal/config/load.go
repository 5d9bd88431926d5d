package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Source 不设默认（必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		MinLength:   0,
		Concurrency: 1,
		Components: Components{
			Reader:  "textline",
			Filter:  "length",
			Matcher: "keyword",
			Dedup:   "fingerprint",
			// Writer 留空：装配期按 output_file 自动选择 fs/discard。
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 经 YAML 转译，
// 其余按 JSON；两者最终都走严格解码（拒绝未知字段）。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return Config{}, fmt.Errorf("yaml: %w", err)
		}
		// YAML→JSON 中转，复用同一严格模型。
		j, err := json.Marshal(tree)
		if err != nil {
			return Config{}, fmt.Errorf("yaml to json: %w", err)
		}
		return LoadJSON(j)
	default:
		return LoadJSON(raw)
	}
}

// LoadJSON 从原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	// 顶层
	if strings.TrimSpace(over.Source) != "" {
		out.Source = strings.TrimSpace(over.Source)
	}
	// 特殊：MinLength 的 0 具有语义（关闭长度过滤），需要显式可覆盖。
	// 约定：当 over.MinLength >= 0 时认为“存在”，否则（例如 -1）视为未覆盖。
	if over.MinLength >= 0 {
		out.MinLength = over.MinLength
	}
	if strings.TrimSpace(over.KeywordsFile) != "" {
		out.KeywordsFile = strings.TrimSpace(over.KeywordsFile)
	}
	if strings.TrimSpace(over.OutputFile) != "" {
		out.OutputFile = strings.TrimSpace(over.OutputFile)
	}
	// Strict 只能向严格方向覆盖（bool 无“未设置”形态）。
	if over.Strict {
		out.Strict = true
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// Logging（仅 level）
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Filter != "" {
		out.Components.Filter = over.Components.Filter
	}
	if over.Components.Matcher != "" {
		out.Components.Matcher = over.Components.Matcher
	}
	if over.Components.Dedup != "" {
		out.Components.Dedup = over.Components.Dedup
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Filter) > 0 {
		out.Options.Filter = cloneRaw(over.Options.Filter)
	}
	if len(over.Options.Matcher) > 0 {
		out.Options.Matcher = cloneRaw(over.Options.Matcher)
	}
	if len(over.Options.Dedup) > 0 {
		out.Options.Dedup = cloneRaw(over.Options.Dedup)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 LMCLEAN_；本集合之外的键忽略。
// 支持：SOURCE, MIN_LENGTH, KEYWORDS_FILE, OUTPUT_FILE, STRICT, CONCURRENCY,
// LOGGING_LEVEL, COMPONENTS_{READER,FILTER,MATCHER,DEDUP,WRITER}
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// 默认：-1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.MinLength = -1
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "LMCLEAN_") {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len("LMCLEAN_") {
			continue
		}
		key := kv[:eq]
		val := kv[eq+1:]
		nk := strings.TrimPrefix(key, "LMCLEAN_")
		switch nk {
		case "SOURCE":
			over.Source = strings.TrimSpace(val)
		case "MIN_LENGTH":
			if v, err := atoi(val); err == nil {
				over.MinLength = v
			}
		case "KEYWORDS_FILE":
			over.KeywordsFile = strings.TrimSpace(val)
		case "OUTPUT_FILE":
			over.OutputFile = strings.TrimSpace(val)
		case "STRICT":
			over.Strict = parseBool(val)
		case "CONCURRENCY":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "LOGGING_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_FILTER":
			over.Components.Filter = strings.TrimSpace(val)
		case "COMPONENTS_MATCHER":
			over.Components.Matcher = strings.TrimSpace(val)
		case "COMPONENTS_DEDUP":
			over.Components.Dedup = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		}
	}
	return over, nil
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
