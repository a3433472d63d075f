package syncgroup

import (
	"sync"
)

// SyncGroup 管理一组长期运行的 goroutine：统一启动、统一等待，
// 并收集第一个返回的错误。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func() error
	err     error
	done    chan struct{}
	once    sync.Once
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{done: make(chan struct{})}
}

// Add 添加一个 goroutine 函数，Run 之后添加的函数在下一次 Run 时启动
func (w *SyncGroup) Add(fn func() error) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, fn)
	w.mu.Unlock()
}

// Run 启动所有已添加的 goroutine 并清空待启动列表
func (w *SyncGroup) Run() {
	w.mu.Lock()
	fns := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, fn := range fns {
		w.wg.Add(1)
		go func(doFunc func() error) {
			defer w.wg.Done()
			if err := doFunc(); err != nil {
				w.mu.Lock()
				if w.err == nil {
					w.err = err
				}
				w.mu.Unlock()
				w.once.Do(func() { close(w.done) })
			}
		}(fn)
	}
}

// Failed 任一 goroutine 返回错误时关闭
func (w *SyncGroup) Failed() <-chan struct{} {
	return w.done
}

// Wait 等待所有 goroutine 完成，返回第一个错误
func (w *SyncGroup) Wait() error {
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
