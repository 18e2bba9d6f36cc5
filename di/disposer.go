package di

import (
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Disposable 需要在作用域结束时释放资源的实例
type Disposable interface {
	Dispose() error
}

// closerAdapter 让 io.Closer 以 Disposable 的形式进入释放器
type closerAdapter struct {
	io.Closer
}

func (c closerAdapter) Dispose() error {
	return c.Close()
}

// asDisposable 判断实例是否需要释放
func asDisposable(instance any) (Disposable, bool) {
	switch v := instance.(type) {
	case Disposable:
		return v, true
	case io.Closer:
		return closerAdapter{v}, true
	default:
		return nil, false
	}
}

type disposerEntry struct {
	instance any
	release  Disposable
}

// Disposer 按插入顺序记录实例，释放时倒序进行（后获取者先释放）。
type Disposer struct {
	mu       sync.Mutex
	entries  []disposerEntry
	disposed bool
}

// NewDisposer 创建空的释放器
func NewDisposer() *Disposer {
	return &Disposer{
		entries: make([]disposerEntry, 0),
	}
}

// Add 追加一个实例。不可释放的实例会被忽略并返回 false。
// 释放器已释放时返回 ErrScopeDisposed。
func (d *Disposer) Add(instance any) (bool, error) {
	release, ok := asDisposable(instance)
	if !ok {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return false, ErrScopeDisposed
	}
	d.entries = append(d.entries, disposerEntry{instance: instance, release: release})
	return true, nil
}

// Len 返回尚未释放的实例数
func (d *Disposer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// DisposeAll 倒序释放全部实例。
// 单个实例释放失败不会中断其余实例的释放，所有失败以一个批量错误返回。
// 重复调用是空操作。
func (d *Disposer) DisposeAll() (int, error) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return 0, nil
	}
	d.disposed = true
	entries := d.entries
	d.entries = nil
	d.mu.Unlock()

	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, release(entries[i]))
	}
	return len(entries), errs
}

// release 释放单个实例，释放过程中的 panic 也作为错误收集
func release(entry disposerEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ReleaseError{Instance: entry.instance, Err: panicError(r)}
		}
	}()

	if e := entry.release.Dispose(); e != nil {
		return &ReleaseError{Instance: entry.instance, Err: e}
	}
	return nil
}
