package orderbook

import (
	"fmt"
	"strings"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/graph"
	"github.com/pkg/errors"
)

// orderFault 归因到单笔订单的计算错误，求解循环据此剔除该订单
type orderFault struct {
	id   encoding.OrderID
	kind Kind
	err  error
}

func (f *orderFault) Error() string {
	return errors.Wrapf(f.err, "order %s", f.id).Error()
}

func (f *orderFault) Unwrap() error { return f.err }

// derivePrices 沿最短路树精确推导价格：p(child) = floor(p(parent) * S / max(B, 1))，S/B 取树边的约束订单。
// 记账单位不在图中时只有它自己有价格。
func derivePrices(g *graph.Graph, numeraire encoding.TokenID) (map[encoding.TokenID]encoding.Price, error) {
	prices := map[encoding.TokenID]encoding.Price{numeraire: encoding.PriceOne}
	if _, ok := g.Node(numeraire); !ok {
		return prices, nil
	}
	paths, err := shortestPaths(g, numeraire)
	if err != nil {
		return nil, err
	}
	one := encoding.NewAmount(1)
	for _, t := range paths.Order()[1:] {
		ei, _ := paths.Parent(t)
		e := g.Edge(ei)
		b := e.Binding()
		buy := b.Rate.Num
		if buy.IsZero() {
			buy = one
		}
		p, err := prices[g.Token(e.From)].MulRatio(b.Rate.Den, buy)
		if err != nil {
			return nil, &orderFault{id: b.ID, kind: KindArithmeticOverflow, err: err}
		}
		prices[t] = p
	}
	return prices, nil
}

// shortestPaths 求最短路。检测到的负环先按约束订单的精确比率复核：
// 比率之积不超过 1 的环是可行的（持平或略有盈余），负权只来自权重的保守取整，
// 把环拉平后重新搜索。复核次数以边数为上限，超出后按负环处理。
func shortestPaths(g *graph.Graph, numeraire encoding.TokenID) (*graph.Paths, error) {
	for attempt := 0; ; attempt++ {
		paths, err := g.ShortestPaths(numeraire)
		var nc *graph.NegativeCycle
		if err == nil || !errors.As(err, &nc) || attempt >= len(g.Edges()) || ringDemanding(g, nc) {
			return paths, err
		}
		g.Level(nc)
	}
}

// ringDemanding 环上约束订单的比率之积是否严格大于 1
func ringDemanding(g *graph.Graph, nc *graph.NegativeCycle) bool {
	rates := make([]encoding.Rate, len(nc.Edges))
	for i, ei := range nc.Edges {
		rates[i] = g.Edge(ei).Binding().Rate
	}
	return encoding.RingCmp(rates) > 0
}

// cycleVictim 负环上权重最小（要求最高）的边的约束订单，同权重时取 OrderID 较大者
func cycleVictim(g *graph.Graph, nc *graph.NegativeCycle) graph.OrderRef {
	var (
		best  graph.OrderRef
		bestW encoding.Weight
	)
	for i, ei := range nc.Edges {
		e := g.Edge(ei)
		b := e.Binding()
		if i == 0 || e.Weight < bestW || (e.Weight == bestW && best.ID.Less(b.ID)) {
			best, bestW = b, e.Weight
		}
	}
	return best
}

func describeCycle(g *graph.Graph, nc *graph.NegativeCycle) string {
	parts := make([]string, 0, len(nc.Edges)+1)
	for i, ei := range nc.Edges {
		e := g.Edge(ei)
		if i == 0 {
			parts = append(parts, fmt.Sprint(g.Token(e.From)))
		}
		parts = append(parts, fmt.Sprint(g.Token(e.To)))
	}
	return strings.Join(parts, "->")
}

// unfillable 在给定价格下检查每笔活跃订单：代币无价格或 p(s)*S < p(b)*B 的订单不可成交
func (ob *Orderbook) unfillable(prices map[encoding.TokenID]encoding.Price) []Diagnostic {
	var out []Diagnostic
	for _, e := range ob.entries {
		if e.remaining.IsZero() {
			continue
		}
		o := &e.order
		ps, okS := prices[o.SellToken]
		pb, okB := prices[o.BuyToken]
		var reason string
		switch {
		case !okS && !okB:
			reason = fmt.Sprintf("tokens %d and %d have no price", o.SellToken, o.BuyToken)
		case !okS:
			reason = fmt.Sprintf("sell token %d has no price", o.SellToken)
		case !okB:
			reason = fmt.Sprintf("buy token %d has no price", o.BuyToken)
		case !encoding.Profitable(o.SellAmount, o.BuyAmount, ps, pb):
			reason = fmt.Sprintf("limit %s/%s not met at prices %s/%s", o.BuyAmount, o.SellAmount, pb, ps)
		default:
			continue
		}
		out = append(out, Diagnostic{Kind: KindUnfillable, Order: o.ID, HasOrder: true, Message: reason})
	}
	return out
}
