package diag

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger 为结构化日志器：logrus JSON 单行输出，默认落盘（logs/ 目录，10m 轮转）。
// 每条事件携带 corr_id 以关联同一次运行。
type Logger struct {
	l      *logrus.Logger
	corrID string
	rot    *RotatingFile
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认目录 logs，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	rot := NewRotatingFile("logs", 10*1024*1024)
	lg := newLogrus(rot, level)
	return &Logger{l: lg, corrID: corrID, rot: rot}
}

// NewLoggerTo 将日志写到指定 writer（测试用）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return &Logger{l: newLogrus(w, level), corrID: corrID}
}

func newLogrus(w io.Writer, level string) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})
	lg.SetLevel(parseLevel(level))
	return lg
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// entry 附带 corr_id 与组件名。
func (l *Logger) entry(comp string) *logrus.Entry {
	return l.l.WithFields(logrus.Fields{"corr_id": l.corrID, "comp": comp})
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	if l == nil {
		return nil
	}
	l.entry(comp).WithField("stage", "start").Info(msg)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWithKV 记录带键值的 start。
func (l *Logger) StartWithKV(comp, msg string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	e := l.entry(comp).WithField("stage", "start")
	for k, v := range kv {
		e = e.WithField(k, v)
	}
	e.Info(msg)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// Warn 记录告警事件（如关键词表坏条目、解码跳行）。
func (l *Logger) Warn(comp, msg string, line int64) {
	if l == nil {
		return
	}
	e := l.entry(comp).WithField("stage", "warn")
	if line > 0 {
		e = e.WithField("line", line)
	}
	e.Warn(msg)
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp string, code Code, msg string, durSince *time.Time) {
	if l == nil {
		return
	}
	e := l.entry(comp).WithFields(logrus.Fields{"stage": "error", "code": string(code)})
	if durSince != nil {
		e = e.WithField("dur_ms", time.Since(*durSince).Milliseconds())
	}
	e.Error(msg)
	IncError(comp, string(code))
}

// ErrorWithKV 支持附带键值对（例如来源路径、错误片段）。
func (l *Logger) ErrorWithKV(comp string, code Code, msg string, kv map[string]string) {
	if l == nil {
		return
	}
	e := l.entry(comp).WithFields(logrus.Fields{"stage": "error", "code": string(code)})
	for k, v := range kv {
		e = e.WithField(k, v)
	}
	e.Error(msg)
	IncError(comp, string(code))
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg string, kv map[string]string) {
	if l == nil {
		return
	}
	e := l.entry(comp).WithField("stage", "start")
	for k, v := range kv {
		e = e.WithField(k, v)
	}
	e.Debug(msg)
}

// Close 关闭落盘句柄（若有）。
func (l *Logger) Close() error {
	if l == nil || l.rot == nil {
		return nil
	}
	return l.rot.Close()
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	t0   time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	e := t.l.entry(t.comp).WithFields(logrus.Fields{"stage": "finish", "dur_ms": dur})
	if count > 0 {
		e = e.WithField("count", count)
	}
	e.Info(msg)
	IncOp(t.comp, "finish", "success")
	ObserveDuration(t.comp, "finish", dur)
}
