package contract

import "errors"

// 最小错误分类哨兵。运行期错误经 %w 包装上抛，调用方以 errors.Is 判别。
var (
	// ErrSourceUnreadable: 输入路径不存在或无法打开（处理开始前致命）。
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrSinkUnwritable: 输出路径无法创建/打开（处理开始前致命，快速失败）。
	ErrSinkUnwritable = errors.New("sink unwritable")
	// ErrDecode: 行无法按 UTF-8 解码；仅在严格模式下致命，否则跳行并告警。
	ErrDecode = errors.New("decode invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrConfigInvalid: 配置静态校验或组件装配失败（启动前致命）。
	ErrConfigInvalid = errors.New("config invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
