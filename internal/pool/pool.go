// Package pool provides a bounded goroutine pool for batch processing.
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("pool is closed")

// Pool 有界工作池，封装 ants。批量查询处理用它限制并发度。
type Pool struct {
	inner  *ants.Pool
	logger *zap.Logger
}

// New 创建容量为 size 的工作池。
func New(size int, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}

	inner, err := ants.NewPool(size,
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(r any) {
			logger.Error("worker panic recovered", zap.Any("panic", r))
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{
		inner:  inner,
		logger: logger.With(zap.String("component", "worker_pool")),
	}, nil
}

// Submit 提交任务。池已关闭时返回 ErrPoolClosed；
// ctx 取消时任务不再提交。
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if p.inner.IsClosed() {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.inner.Submit(task)
}

// Running 返回当前运行中的 worker 数
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Cap 返回池容量
func (p *Pool) Cap() int {
	return p.inner.Cap()
}

// Release 关闭池并等待在途任务结束。
func (p *Pool) Release() {
	p.inner.Release()
}
