package textline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/readahead"

	"lmclean/pkg/contract"
)

// Options 为文本行 Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize: 读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// MaxLineBytes: 单行最大字节数，即内存上界的“最长行”项。默认 16MiB。
	// 超限对整次运行致命（错误指明该选项），处理超长行需显式调大。
	MaxLineBytes int `json:"max_line_bytes"`
	// ReadAhead: 是否对常规文件启用异步预读（大文件顺序扫描收益明显）。
	// 默认 true；显式 false 关闭。
	ReadAhead *bool `json:"read_ahead,omitempty"`
	// Strict: UTF-8 解码失败时是否致命。默认 false（跳行并告警）。
	Strict bool `json:"strict"`
	// CommentPrefix: 非空时在行内首个出现处截断（截断后的文本参与后续各阶段）。
	// 默认空（整行即记录）。
	CommentPrefix string `json:"comment_prefix"`
}

// Reader 实现基于文件系统与 STDIN 的逐行 Reader。
type Reader struct {
	bufSize   int
	maxLine   int
	readAhead bool
	strict    bool
	comment   string
}

// New 创建文本行 Reader。
func New(opts *Options) *Reader {
	const (
		defaultBuf     = 64 * 1024
		defaultMaxLine = 16 * 1024 * 1024
	)
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ml := defaultMaxLine
	if opts != nil && opts.MaxLineBytes > 0 {
		ml = opts.MaxLineBytes
	}
	if ml < b {
		ml = b
	}
	ra := true
	if opts != nil && opts.ReadAhead != nil {
		ra = *opts.ReadAhead
	}
	r := &Reader{bufSize: b, maxLine: ml, readAhead: ra}
	if opts != nil {
		r.strict = opts.Strict
		r.comment = opts.CommentPrefix
	}
	return r
}

var _ contract.Reader = (*Reader)(nil)

// Stream 逐行回调 source 的内容；"-" 表示 STDIN。
// 打开失败归类为 ErrSourceUnreadable；遍历中的 I/O 错误原样上抛。
func (r *Reader) Stream(ctx context.Context, source string, warn contract.WarnFunc, yield func(contract.Record) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var rc io.ReadCloser
	if strings.TrimSpace(source) == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("%w: %v", contract.ErrSourceUnreadable, err)
		}
		rc = f
	}
	defer rc.Close()
	return r.scan(ctx, rc, warn, yield)
}

// scan 以单个缓冲块推进游标；内存上界为缓冲块加最长行。
func (r *Reader) scan(ctx context.Context, rc io.Reader, warn contract.WarnFunc, yield func(contract.Record) error) error {
	src := rc
	if r.readAhead {
		// 异步预读：读线程与处理线程重叠，顺序大文件显著受益。
		if ra, err := readahead.NewReaderSize(rc, 4, r.bufSize); err == nil {
			defer ra.Close()
			src = ra
		}
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, r.bufSize), r.maxLine)

	var line int64
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line++
		// ScanLines 已剥离行终止符（含 CRLF 的 \r），即 CRLF→LF 归一。
		text := sc.Text()
		if !utf8.ValidString(text) {
			if r.strict {
				return fmt.Errorf("%w: line %d", contract.ErrDecode, line)
			}
			if warn != nil {
				warn(contract.Warning{Code: contract.WarnDecode, Line: line, Msg: "invalid utf-8, line skipped"})
			}
			continue
		}
		if r.comment != "" {
			if i := strings.Index(text, r.comment); i >= 0 {
				text = text[:i]
			}
		}
		if err := yield(contract.Record{Line: line, Text: text}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("line %d exceeds max_line_bytes (%d): %w", line+1, r.maxLine, err)
		}
		return fmt.Errorf("scan after line %d: %w", line, err)
	}
	return nil
}
