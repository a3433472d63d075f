package orderbook

import (
	"math/big"
	"sort"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/graph"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Trade 一笔实际成交
type Trade struct {
	ID        encoding.OrderID
	SellToken encoding.TokenID
	BuyToken  encoding.TokenID
	Sold      encoding.Amount
	Bought    encoding.Amount
}

// Result 一次求解的输出
type Result struct {
	Solution *encoding.Solution
	// Trades 成交量大于 0 的订单，按 OrderID 升序
	Trades      []Trade
	Diagnostics []Diagnostic
	Iterations  int
}

// Balances 每个代币的净头寸（Σ卖入 - Σ买出），求解结果保证全部 >= 0
func (r *Result) Balances() map[encoding.TokenID]*big.Int {
	out := make(map[encoding.TokenID]*big.Int)
	for _, tr := range r.Trades {
		if _, ok := out[tr.SellToken]; !ok {
			out[tr.SellToken] = new(big.Int)
		}
		if _, ok := out[tr.BuyToken]; !ok {
			out[tr.BuyToken] = new(big.Int)
		}
		out[tr.SellToken].Add(out[tr.SellToken], tr.Sold.Big())
		out[tr.BuyToken].Sub(out[tr.BuyToken], tr.Bought.Big())
	}
	return out
}

// Pruned 本次求解中被剔除的订单数
func (r *Result) Pruned() int {
	n := 0
	for _, d := range r.Diagnostics {
		switch d.Kind {
		case KindArithmeticOverflow, KindUnfillable, KindNegativeCycle:
			n++
		}
	}
	return n
}

// Solve 迭代求解：
//  1. 用活跃订单建图；
//  2. 从记账单位求最短路，遇到负环剔除环上要求最高的订单后重来；
//  3. 沿最短路树精确推导价格，溢出或价格为 0 时剔除对应订单后重来；
//  4. 剔除代币无价格或在该价格下亏损的订单，有剔除则重来；
//  5. 分配成交量并扣减剩余数量。
//
// 每轮要么结束要么至少剔除一笔订单，默认上限为活跃订单数 + 1，超出返回 ErrUnsolvable。
func (ob *Orderbook) Solve() (*Result, error) {
	res := &Result{Diagnostics: append([]Diagnostic(nil), ob.ingest...)}
	limit := ob.maxIterations
	if limit <= 0 {
		limit = ob.Active() + 1
	}

	for iter := 1; ; iter++ {
		if iter > limit {
			return nil, errors.Wrapf(ErrUnsolvable, "after %d iterations", limit)
		}
		res.Iterations = iter
		lg := ob.log.WithField("iteration", iter)

		offers := ob.offers()
		if len(offers) == 0 {
			lg.Debugf("no active orders left")
			return ob.emit(res, nil, nil), nil
		}

		g, err := graph.Build(offers)
		if err != nil {
			var oe *graph.OrderError
			if !errors.As(err, &oe) {
				return nil, err
			}
			ob.drop(lg, res, orderDiagnostic(KindArithmeticOverflow, oe.ID, oe.Err))
			continue
		}
		lg.Debugf("graph: %d tokens, %d edges, %d orders", g.Len(), len(g.Edges()), len(offers))

		prices, err := derivePrices(g, ob.numeraire)
		if err != nil {
			var (
				nc    *graph.NegativeCycle
				fault *orderFault
			)
			switch {
			case errors.As(err, &nc):
				victim := cycleVictim(g, nc)
				ob.drop(lg, res, Diagnostic{
					Kind:     KindNegativeCycle,
					Order:    victim.ID,
					HasOrder: true,
					Message:  "most demanding order on cycle " + describeCycle(g, nc),
				})
			case errors.As(err, &fault):
				ob.drop(lg, res, orderDiagnostic(fault.kind, fault.id, fault.err))
			default:
				return nil, err
			}
			continue
		}

		if bad := ob.unfillable(prices); len(bad) > 0 {
			for _, d := range bad {
				ob.drop(lg, res, d)
			}
			continue
		}

		fills, err := ob.apportion(g, prices)
		if err != nil {
			var fault *orderFault
			if !errors.As(err, &fault) {
				return nil, err
			}
			ob.drop(lg, res, orderDiagnostic(fault.kind, fault.id, fault.err))
			continue
		}
		return ob.emit(res, prices, fills), nil
	}
}

func (ob *Orderbook) drop(lg *logrus.Entry, res *Result, d Diagnostic) {
	lg.Infof("prune order %s (%s): %s", d.Order, d.Kind, d.Message)
	ob.prune(d.Order)
	res.Diagnostics = append(res.Diagnostics, d)
}

// emit 组装解并扣减剩余数量。prices 为空时是退化解：只有记账单位有价格，成交全为 0
func (ob *Orderbook) emit(res *Result, prices map[encoding.TokenID]encoding.Price, fills map[encoding.OrderID]*fill) *Result {
	sol := encoding.NewSolution(ob.numeraire)
	for t, p := range prices {
		sol.Prices[t] = p
	}
	for _, t := range ob.tokens {
		if _, ok := sol.Prices[t]; ok {
			continue
		}
		sol.Unpriced = append(sol.Unpriced, t)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:    KindDisconnectedToken,
			Token:   t,
			Message: "no path to numeraire, price undefined",
		})
	}

	for _, e := range ob.entries {
		f, ok := fills[e.order.ID]
		if !ok || f.sold.IsZero() {
			sol.Fills[e.order.ID] = encoding.Amount{}
			continue
		}
		sol.Fills[e.order.ID] = f.sold
		// sold <= remaining，由分配过程保证
		e.remaining, _ = e.remaining.Sub(f.sold)
		res.Trades = append(res.Trades, Trade{
			ID:        e.order.ID,
			SellToken: e.order.SellToken,
			BuyToken:  e.order.BuyToken,
			Sold:      f.sold,
			Bought:    f.bought,
		})
	}
	sort.Slice(res.Trades, func(i, j int) bool { return res.Trades[i].ID.Less(res.Trades[j].ID) })

	res.Solution = sol
	ob.log.Infof("solved in %d iterations: %d priced, %d unpriced, %d trades, %d diagnostics",
		res.Iterations, len(sol.Prices), len(sol.Unpriced), len(res.Trades), len(res.Diagnostics))
	return res
}
