package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "lmclean/internal/config"
	"lmclean/internal/diag"
	"lmclean/internal/pipeline"
	"lmclean/pkg/contract"
)

var pipelineRun = pipeline.Run

// 简化的 CLI：默认子命令 run。
// 位置参数为 source（文件路径 或 "-" 表示 STDIN）。
// 全局旗标（最小集）：--config, --min-length, --keywords, --output, --concurrency, --strict
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	// 从配置读取日志级别，仅保留 level 选项；默认 info
	logLevel := "info"
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level
	logger := diag.NewLogger(corrID, logLevel)
	// flags
	var (
		flagConfig      string
		flagMinLength   int
		flagKeywords    string
		flagOutput      string
		flagConcurrency int
		flagStrict      bool
		flagInitDir     string
		flagStatus      bool
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json（若存在）")
	// min-length 允许显式设置为 0；默认 -1 表示“未覆盖”。
	flag.IntVar(&flagMinLength, "min-length", -1, "最小标量数（覆盖配置；0 表示关闭长度过滤）")
	flag.StringVar(&flagKeywords, "keywords", "", "关键词文件路径（覆盖配置）")
	flag.StringVar(&flagOutput, "output", "", "输出文件路径（覆盖配置；缺省只统计不落盘）")
	flag.IntVar(&flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	flag.BoolVar(&flagStrict, "strict", false, "UTF-8 解码失败视为致命（覆盖配置）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（若已存在则跳过，不覆盖）；不带值时默认当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	normalizeInitArg()
	flag.Parse()

	// source（位置参数）
	args := flag.Args()

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		if err := os.MkdirAll(initDir, 0o755); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", diag.Classify(err), "init-config failed", &start)
			return 3
		}
		if err := writeConfig(filepath.Join(initDir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", diag.Classify(err), "init-config failed", &start)
			return 3
		}
		// 生成 .env 模板（不覆盖已存在文件）。
		if err := writeDotEnv(filepath.Join(initDir, ".env")); err != nil {
			fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
		}
		return 0
	}

	// JSON 配置（文件或 ENV: LMCLEAN_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv("LMCLEAN_CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		if s := os.Getenv("LMCLEAN_CONFIG_FILE"); s != "" {
			flagConfig = s
		}
	}
	// 默认读取工作目录下 config.json / config.yaml（若存在）
	if flagConfig == "" {
		for _, cand := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(cand); err == nil {
				flagConfig = cand
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	switch {
	case len(cfgJSON) > 0:
		base, err := cfgpkg.LoadJSON(cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("cli", diag.Classify(err), "config parse failed", &start)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	case flagConfig != "":
		base, err := cfgpkg.LoadFile(flagConfig)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("cli", diag.Classify(err), "config parse failed", &start)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("cli", diag.Classify(err), "env parse failed", &start)
		return 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	var overCLI cfgpkg.Config
	// 标记 MinLength 未设置（避免默认 0 被误判为要覆盖）
	overCLI.MinLength = -1
	if flagMinLength >= 0 {
		overCLI.MinLength = flagMinLength
	}
	if flagKeywords != "" {
		overCLI.KeywordsFile = flagKeywords
	}
	if flagOutput != "" {
		overCLI.OutputFile = flagOutput
	}
	if flagConcurrency > 0 {
		overCLI.Concurrency = flagConcurrency
	}
	if flagStrict {
		overCLI.Strict = true
	}
	if len(args) > 0 {
		overCLI.Source = args[0]
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if len(args) > 1 {
		fprintf(os.Stderr, "仅接受一个位置参数（source），收到 %d 个\n", len(args))
		return 3
	}

	// 基本校验
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("cli", diag.Classify(err), "config validate failed", &start)
		return 3
	}

	// 使用最终配置中的日志级别重建 logger
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		logLevel = strings.TrimSpace(cfg.Logging.Level)
	}
	logger = diag.NewLogger(corrID, logLevel)
	defer logger.Close()

	// 预检：若输出到文件，检查输出目录可写性（失败要快、先于读取）。
	if err := preflightCheckOutput(cfg); err != nil {
		fprintf(os.Stderr, "输出位置不可写: %v\n", err)
		logger.Error("cli", diag.Classify(err), "output preflight failed", &start)
		return 3
	}

	comp, set, loadWarns, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("cli", diag.Classify(err), "assemble failed", &start)
		return 3
	}
	for _, w := range loadWarns {
		logger.Warn("matcher", w.Msg, w.Line)
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(set.Concurrency, set.Source)

	// debug: 输出运行时配置信息
	logger.DebugStart("config", "effective", map[string]string{
		"source":      set.Source,
		"min_length":  fmt.Sprintf("%d", cfg.MinLength),
		"keywords":    cfg.KeywordsFile,
		"output":      cfg.OutputFile,
		"concurrency": fmt.Sprintf("%d", set.Concurrency),
		"strict":      fmt.Sprintf("%v", cfg.Strict),
	})

	// SIGINT/SIGTERM 触发优雅取消：部分输出保留，统计如实上报。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 运行流水线
	sum, runErr := pipelineRun(ctx, comp, set, logger)
	sum.Warnings = append(loadWarns, sum.Warnings...)
	term.RunFinish(runErr == nil, sum.Stats.Read, sum.Stats.Written, time.Since(start))
	printSummary(os.Stdout, sum)

	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", runErr)
		}
		return 1
	}
	return 0
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

// printSummary 打印人读摘要（stdout；机器侧请看结构化日志）。
func printSummary(w *os.File, sum contract.Summary) {
	fprintf(w, "状态: %s\n", sum.State)
	s := sum.Stats
	fprintf(w, "统计: 读取 %d | 长度拒绝 %d | 关键词拒绝 %d | 重复拒绝 %d | 写出 %d",
		s.Read, s.RejectedByLength, s.RejectedByKeyword, s.RejectedAsDuplicate, s.Written)
	if s.DecodeSkipped > 0 {
		fprintf(w, " | 解码跳过 %d", s.DecodeSkipped)
	}
	fprintf(w, "\n")
	if n := len(sum.Warnings); n > 0 {
		const maxShow = 5
		fprintf(w, "告警 %d 条:\n", n)
		for i, wn := range sum.Warnings {
			if i == maxShow {
				fprintf(w, "  …其余 %d 条见日志\n", n-maxShow)
				break
			}
			if wn.Line > 0 {
				fprintf(w, "  [%s] 行 %d: %s\n", wn.Code, wn.Line, wn.Msg)
			} else {
				fprintf(w, "  [%s] %s\n", wn.Code, wn.Msg)
			}
		}
	}
}

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export ".
// - 仅按首个 '=' 分割；key 为左侧去空白；value 去首尾空白；
// - 若 value 被成对的单/双引号包裹，则去除外层引号；双引号内常见转义 \n/\t/\\/\" 作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		// 去除成对引号
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					// 最小转义处理
					val = strings.ReplaceAll(val, "\\n", "\n")
					val = strings.ReplaceAll(val, "\\t", "\t")
					val = strings.ReplaceAll(val, "\\r", "\r")
					val = strings.ReplaceAll(val, "\\\"", "\"")
					val = strings.ReplaceAll(val, "\\\\", "\\")
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用默认值当前目录 "."。
// 兼容以下形式：
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
//
// 仅在检测到“裸开关或后继为下一个开关”的情况下插入默认值。
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			// 若已到末尾，补一个默认值
			if i == len(args)-1 {
				out = append(out, ".")
				continue
			}
			// 若下一个是开关（以 - 开头），则补默认值
			if strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
				continue
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		// 已存在直接跳过
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# lmclean .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置；按需填写后移除本行注释。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("LMCLEAN_CONFIG_FILE=\n")
	b.WriteString("LMCLEAN_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	b.WriteString("LMCLEAN_SOURCE=\n")
	b.WriteString("LMCLEAN_MIN_LENGTH=\n")
	b.WriteString("LMCLEAN_KEYWORDS_FILE=\n")
	b.WriteString("LMCLEAN_OUTPUT_FILE=\n")
	b.WriteString("LMCLEAN_STRICT=\n")
	b.WriteString("LMCLEAN_CONCURRENCY=\n")
	b.WriteString("LMCLEAN_LOGGING_LEVEL=\n\n")

	b.WriteString("# 组件选择\n")
	b.WriteString("LMCLEAN_COMPONENTS_READER=\n")
	b.WriteString("LMCLEAN_COMPONENTS_FILTER=\n")
	b.WriteString("LMCLEAN_COMPONENTS_MATCHER=\n")
	b.WriteString("LMCLEAN_COMPONENTS_DEDUP=\n")
	b.WriteString("LMCLEAN_COMPONENTS_WRITER=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return nil
}

// preflightCheckOutput: 输出到文件时，启动前检查目标目录可写性。
// 规则：
// - 目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
func preflightCheckOutput(cfg cfgpkg.Config) error {
	out := strings.TrimSpace(cfg.OutputFile)
	if out == "" {
		// 显式 fs Options 中的 path 也要检查
		if strings.TrimSpace(cfg.Components.Writer) == "fs" && len(cfg.Options.Writer) > 0 {
			var wopts struct {
				Path string `json:"path"`
			}
			_ = json.Unmarshal(cfg.Options.Writer, &wopts)
			out = strings.TrimSpace(wopts.Path)
		}
		if out == "" {
			return nil
		}
	}
	dir := filepath.Dir(out)
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
