package contract

// State: 流水线状态机（Idle → Running → 终态）。
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal 报告 s 是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Stats: 运行计数。每条成功解码的记录恰好归因一个结果。
// 守恒不变量：Read == RejectedByLength + RejectedByKeyword + RejectedAsDuplicate + Written。
// DecodeSkipped 统计未能解码、从未成为记录的行，位于守恒和之外。
type Stats struct {
	Read                int64 `json:"read"`
	RejectedByLength    int64 `json:"rejected_by_length"`
	RejectedByKeyword   int64 `json:"rejected_by_keyword"`
	RejectedAsDuplicate int64 `json:"rejected_as_duplicate"`
	Written             int64 `json:"written"`
	DecodeSkipped       int64 `json:"decode_skipped,omitempty"`
}

// Conserved 校验计数守恒不变量。
func (s Stats) Conserved() bool {
	return s.Read == s.RejectedByLength+s.RejectedByKeyword+s.RejectedAsDuplicate+s.Written
}

// WarnCode: 告警最小分类。
type WarnCode string

const (
	// WarnDecode: 行 UTF-8 解码失败被跳过（非严格模式）。
	WarnDecode WarnCode = "decode"
	// WarnKeywordEntry: 关键词文件坏条目在装载期被跳过。
	WarnKeywordEntry WarnCode = "keyword_entry"
)

// Warning: 单条非致命告警；累积于 Summary，永不中断处理。
type Warning struct {
	Code WarnCode `json:"code"`
	Line int64    `json:"line,omitempty"`
	Msg  string   `json:"msg"`
}

// Summary: 运行结束交还调用方的只读摘要。
type Summary struct {
	State    State     `json:"state"`
	Stats    Stats     `json:"stats"`
	Warnings []Warning `json:"warnings,omitempty"`
}
