package solver

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/metrics"
	"github.com/betbot/batchauction/internal/orderbook"
	"github.com/betbot/batchauction/pkg/config"
	"github.com/betbot/batchauction/pkg/persistence"
)

// ErrSolveTimeout 求解超过配置的墙钟上限
var ErrSolveTimeout = errors.New("solve timed out")

var log = logrus.WithField("component", "solver")

// Outcome 一个批次的求解结果
type Outcome struct {
	BatchID string
	Result  *orderbook.Result
	Hash    common.Hash
	// Residual 扣减成交后仍有剩余的订单，可作为下一批次的输入
	Residual     []encoding.Order
	RecordErrors []error
	Elapsed      time.Duration
}

// Service 求解服务：超时控制、并发求解、指标与持久化
type Service struct {
	cfg   config.SolverConfig
	store persistence.SolutionStore
	log   *logrus.Entry
}

// NewService 创建求解服务，store 可以为 nil（不保存）
func NewService(cfg config.SolverConfig, store persistence.SolutionStore) *Service {
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = config.DefaultSolveTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = config.DefaultParallelism
	}
	return &Service{cfg: cfg, store: store, log: log}
}

// Store 当前使用的解存储
func (s *Service) Store() persistence.SolutionStore { return s.store }

type solveReply struct {
	ob  *orderbook.Orderbook
	res *orderbook.Result
	err error
}

// Solve 求解单个批次。
// 求解在独立 goroutine 中进行，超过 SolveTimeout 或 ctx 结束时立即返回；
// 订单簿是本次调用私有的，超时后后台计算结束即被丢弃。
func (s *Service) Solve(ctx context.Context, b *Batch) (*Outcome, error) {
	if b == nil {
		return nil, errors.New("nil batch")
	}
	lg := s.log.WithField("batch", b.ID)
	for _, err := range b.RecordErrors {
		lg.Warnf("skip record: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SolveTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, s.interrupted(lg, b, err)
	}

	start := time.Now()
	reply := make(chan solveReply, 1)
	go func() {
		ob, err := orderbook.New(b.Tokens, b.Numeraire, b.Orders,
			orderbook.WithMaxIterations(s.cfg.MaxIterations),
			orderbook.WithLogger(lg))
		if err != nil {
			reply <- solveReply{err: err}
			return
		}
		res, err := ob.Solve()
		reply <- solveReply{ob: ob, res: res, err: err}
	}()

	var r solveReply
	select {
	case r = <-reply:
	case <-ctx.Done():
		return nil, s.interrupted(lg, b, ctx.Err())
	}
	if r.err != nil {
		metrics.SolveErrors.Add(1)
		lg.Errorf("solve failed: %v", r.err)
		return nil, errors.Wrapf(r.err, "batch %s", b.ID)
	}

	out := &Outcome{
		BatchID:      b.ID,
		Result:       r.res,
		RecordErrors: b.RecordErrors,
		Elapsed:      time.Since(start),
	}
	hash, err := r.res.Solution.Hash()
	if err != nil {
		metrics.SolveErrors.Add(1)
		return nil, errors.Wrapf(err, "batch %s: encode solution", b.ID)
	}
	out.Hash = hash
	out.Residual = r.ob.Residual()

	metrics.Solves.Add(1)
	metrics.Iterations.Add(int64(r.res.Iterations))
	metrics.PrunedOrders.Add(int64(r.res.Pruned()))
	metrics.ExecutedOrders.Add(int64(len(r.res.Trades)))

	if s.store != nil {
		if err := s.store.Save(ctx, b.ID, r.res.Solution); err != nil {
			metrics.SolveErrors.Add(1)
			return nil, errors.Wrapf(err, "batch %s: save solution", b.ID)
		}
		metrics.SolutionSaves.Add(1)
	}

	lg.WithFields(logrus.Fields{
		"iterations": r.res.Iterations,
		"trades":     len(r.res.Trades),
		"pruned":     r.res.Pruned(),
		"hash":       hash.Hex(),
	}).Infof("batch solved in %s", out.Elapsed)
	return out, nil
}

func (s *Service) interrupted(lg *logrus.Entry, b *Batch, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.SolveTimeouts.Add(1)
		lg.Warnf("solve timed out after %s", s.cfg.SolveTimeout)
		return errors.Wrapf(ErrSolveTimeout, "batch %s after %s", b.ID, s.cfg.SolveTimeout)
	}
	return err
}

// SolveAll 并发求解多个批次，并发度为 Parallelism。
// 结果与错误按输入顺序返回，单个批次失败不影响其它批次。
func (s *Service) SolveAll(ctx context.Context, batches []*Batch) ([]*Outcome, []error) {
	outs := make([]*Outcome, len(batches))
	errs := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			outs[i], errs[i] = s.Solve(ctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return outs, errs
}
