package graph

import (
	"fmt"
	"strings"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/pkg/errors"
)

var (
	// ErrNegativeCycle 从源点可达的权重和为负的环（取整后的权重，调用方可按精确比率复核）
	ErrNegativeCycle = errors.New("negative cycle")
	// ErrUnknownToken 代币不在图中
	ErrUnknownToken = errors.New("unknown token")
)

// NegativeCycle 负环，Edges 为环上边的下标（按行进方向）
type NegativeCycle struct {
	Edges []int
}

func (e *NegativeCycle) Error() string {
	parts := make([]string, len(e.Edges))
	for i, idx := range e.Edges {
		parts[i] = fmt.Sprint(idx)
	}
	return fmt.Sprintf("negative cycle through edges [%s]", strings.Join(parts, " "))
}

func (e *NegativeCycle) Is(target error) bool { return target == ErrNegativeCycle }

// OrderError 建图时归因到具体订单的错误（例如边容量溢出）
type OrderError struct {
	ID  encoding.OrderID
	Err error
}

func (e *OrderError) Error() string {
	return errors.Wrapf(e.Err, "order %s", e.ID).Error()
}

func (e *OrderError) Unwrap() error { return e.Err }
