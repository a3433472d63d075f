package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/batchauction/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type callback struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序依次执行（先停入口，再关存储）
type Manager struct {
	callbacks []callback
	mu        sync.Mutex
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调并清空列表，返回第一个错误。
// ctx 超时后剩余回调仍会执行，但拿到的是已结束的 ctx。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return nil
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var first error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.fn(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", cb.name, err)
			if first == nil {
				first = err
			}
		}
	}
	if ctx.Err() != nil {
		logger.Warnf("关闭超时: %v", ctx.Err())
	}
	return first
}
