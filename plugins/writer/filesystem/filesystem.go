package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lmclean/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Path: 输出文件路径（必需）。
	Path string `json:"path"`
	// Atomic: 是否经同目录临时文件 + rename 原子替换目标。
	// 默认 false（直写）：失败/取消时已写出的部分输出按契约保留在目标路径；
	// 置 true 获得“全有或全无”语义（成功或取消收尾时才可见目标文件）。
	Atomic bool `json:"atomic,omitempty"`
	// PermFile: 目标文件权限；0 采用 0644。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	// BufSize: 写缓冲区大小；<=0 采用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将幸存记录逐行追加到单个输出文件。
// 单写者；Close 前冲刷并 fsync；构造期即打开目标，快速失败。
type FS struct {
	dest    string
	atomic  bool
	permF   os.FileMode
	bufSize int

	f       *os.File
	bw      *bufio.Writer
	tmpPath string
}

// New 创建文件系统 Writer 并立即打开输出目标。
// 打开/创建失败归类为 ErrSinkUnwritable（任何读取发生之前）。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: empty path", contract.ErrPathInvalid)
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	w := &FS{dest: opts.Path, atomic: opts.Atomic, permF: pf, bufSize: bsz}
	if err := w.open(); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrSinkUnwritable, err)
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

func (w *FS) open() error {
	dir := filepath.Dir(w.dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if w.atomic {
		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return err
		}
		w.tmpPath = tmp.Name()
		// 目标权限：尽量与期望一致
		_ = os.Chmod(w.tmpPath, w.permF)
		w.f = tmp
	} else {
		f, err := os.OpenFile(w.dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
		if err != nil {
			return err
		}
		w.f = f
	}
	w.bw = bufio.NewWriterSize(w.f, w.bufSize)
	return nil
}

// Append 追加一条记录与行分隔符。按调用顺序落盘。
func (w *FS) Append(ctx context.Context, rec contract.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.f == nil {
		return os.ErrClosed
	}
	if _, err := w.bw.WriteString(rec.Text); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Close 冲刷并持久化；atomic 模式下原子替换目标后方才可见。
// Close 返回 nil 即保证所有 Append 内容已落盘。
func (w *FS) Close(ctx context.Context) error {
	if w.f == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		w.drop()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.drop()
		return err
	}
	if err := w.f.Close(); err != nil {
		w.f = nil
		return err
	}
	w.f = nil
	if w.atomic {
		if err := osReplace(w.tmpPath, w.dest); err != nil {
			_ = os.Remove(w.tmpPath)
			return err
		}
		// 最佳努力：同步父目录元数据，提升崩溃安全性
		_ = syncDir(filepath.Dir(w.dest))
	}
	return nil
}

// Discard 放弃未完成的工件：atomic 模式移除临时文件（目标从未出现）；
// 直写模式保留已写出的部分输出（由失败信号标记不完整）。
func (w *FS) Discard() error {
	if w.f == nil {
		return nil
	}
	_ = w.bw.Flush()
	err := w.f.Close()
	w.f = nil
	if w.atomic {
		_ = os.Remove(w.tmpPath)
	}
	return err
}

func (w *FS) drop() {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if w.atomic {
		_ = os.Remove(w.tmpPath)
	}
}
