package orderbook

import (
	"math/big"
	"sort"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/graph"
)

// fill 单笔订单的成交：卖出 sold，换回 bought
type fill struct {
	order  *encoding.Order
	sold   encoding.Amount
	bought encoding.Amount
}

// apportion 在固定价格下分配成交量。
//
// 以价值（数量×价格）为单位，边容量为 Σ剩余量×p(卖出代币)。反复找一个所有边都有余量的环，
// 按瓶颈值推送，每次推送至少耗尽一条边，最多 |E| 次。贪心推送只得到极大流，
// 之后在残量图中消去可改进环（见 maximize），得到总成交价值最大的循环流。
// 边上的流量按优先级分给订单（末位可部分成交），
// 再换算为数量：sold = floor(v/p(s))，bought = floor(sold*p(s)/p(b))。
// 取整后可能有代币略微超卖，由 repair 收回。
func (ob *Orderbook) apportion(g *graph.Graph, prices map[encoding.TokenID]encoding.Price) (map[encoding.OrderID]*fill, error) {
	edges := g.Edges()
	capacity := make([]encoding.Value, len(edges))
	flow := make([]encoding.Value, len(edges))
	for i := range edges {
		capacity[i] = encoding.ValueOf(edges[i].Capacity, prices[g.Token(edges[i].From)])
	}

	open := func(ei int) bool { return !capacity[ei].IsZero() }
	for {
		cycle := g.FindCycle(open)
		if cycle == nil {
			break
		}
		bottleneck := capacity[cycle[0]]
		for _, ei := range cycle[1:] {
			bottleneck = encoding.MinValue(bottleneck, capacity[ei])
		}
		for _, ei := range cycle {
			// bottleneck <= capacity[ei]，流量不超过边容量 < 2^256
			capacity[ei], _ = capacity[ei].Sub(bottleneck)
			flow[ei], _ = flow[ei].Add(bottleneck)
		}
	}
	ob.maximize(g, capacity, flow)

	fills := make(map[encoding.OrderID]*fill)
	for i := range edges {
		if flow[i].IsZero() {
			continue
		}
		e := &edges[i]
		ps := prices[g.Token(e.From)]
		pb := prices[g.Token(e.To)]
		rest := flow[i]
		for _, ref := range e.Orders {
			if rest.IsZero() {
				break
			}
			v := encoding.MinValue(encoding.ValueOf(ref.Remaining, ps), rest)
			rest, _ = rest.Sub(v)

			sold, err := v.AmountAt(ps)
			if err != nil {
				return nil, &orderFault{id: ref.ID, kind: KindArithmeticOverflow, err: err}
			}
			if sold.IsZero() {
				continue
			}
			bought, err := encoding.Convert(sold, ps, pb)
			if err != nil {
				return nil, &orderFault{id: ref.ID, kind: KindArithmeticOverflow, err: err}
			}
			fills[ref.ID] = &fill{order: &ob.byID[ref.ID].order, sold: sold, bought: bought}
		}
	}

	if err := ob.repair(fills, prices); err != nil {
		return nil, err
	}
	return fills, nil
}

// maximize 消去残量图中的可改进环：正向弧在有余量的边上，反向弧在有流量的边上。
// 每次按瓶颈推送后总流量严格增加、至少一条弧饱和；次数以 |E|²+1 为上限，到达上限时保留当前可行流。
func (ob *Orderbook) maximize(g *graph.Graph, capacity, flow []encoding.Value) {
	forward := func(ei int) bool { return !capacity[ei].IsZero() }
	backward := func(ei int) bool { return !flow[ei].IsZero() }
	limit := len(capacity)*len(capacity) + 1
	for round := 0; round < limit; round++ {
		cycle := g.ImprovingCycle(forward, backward)
		if cycle == nil {
			return
		}
		var bottleneck encoding.Value
		for i, a := range cycle {
			room := capacity[a.Edge]
			if a.Reverse {
				room = flow[a.Edge]
			}
			if i == 0 || room.Cmp(bottleneck) < 0 {
				bottleneck = room
			}
		}
		for _, a := range cycle {
			// bottleneck 不超过弧的余量，加减都不会越界
			if a.Reverse {
				flow[a.Edge], _ = flow[a.Edge].Sub(bottleneck)
				capacity[a.Edge], _ = capacity[a.Edge].Add(bottleneck)
			} else {
				capacity[a.Edge], _ = capacity[a.Edge].Sub(bottleneck)
				flow[a.Edge], _ = flow[a.Edge].Add(bottleneck)
			}
		}
		ob.log.Debugf("improving cycle of %d arcs, pushed %s", len(cycle), bottleneck)
	}
	ob.log.Warnf("flow maximisation stopped after %d rounds", limit)
}

// balances 每个代币的净头寸：Σ卖入 - Σ买出
func balances(fills map[encoding.OrderID]*fill) map[encoding.TokenID]*big.Int {
	out := make(map[encoding.TokenID]*big.Int)
	at := func(t encoding.TokenID) *big.Int {
		b, ok := out[t]
		if !ok {
			b = new(big.Int)
			out[t] = b
		}
		return b
	}
	for _, f := range fills {
		at(f.order.SellToken).Add(at(f.order.SellToken), f.sold.Big())
		at(f.order.BuyToken).Sub(at(f.order.BuyToken), f.bought.Big())
	}
	return out
}

// repair 消除取整造成的超卖：对净头寸为负的代币（按 TokenID 升序），
// 从 OrderID 最大的买方开始削减卖出量 δ = ceil(d*p(b)/p(s))，直到所有代币净头寸 >= 0。
// 每一步至少让一笔成交的 bought 严格减少，因此必然终止。
func (ob *Orderbook) repair(fills map[encoding.OrderID]*fill, prices map[encoding.TokenID]encoding.Price) error {
	ids := make([]encoding.OrderID, 0, len(fills))
	for id := range fills {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	for {
		bal := balances(fills)
		tokens := make([]encoding.TokenID, 0, len(bal))
		for t, b := range bal {
			if b.Sign() < 0 {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) == 0 {
			return nil
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
		t := tokens[0]
		deficit := new(big.Int).Neg(bal[t])

		var victim *fill
		for i := len(ids) - 1; i >= 0; i-- {
			f := fills[ids[i]]
			if f.order.BuyToken == t && !f.bought.IsZero() {
				victim = f
				break
			}
		}
		// 净头寸为负意味着必有买方，victim 不会为空
		ps := prices[victim.order.SellToken]
		pb := prices[victim.order.BuyToken]

		var sold encoding.Amount
		if d, err := encoding.AmountFromBig(deficit); err == nil && d.Cmp(victim.bought) < 0 {
			delta, err := encoding.MulDivCeil(d, pb.Raw(), ps.Raw())
			if err == nil && delta.Cmp(victim.sold) < 0 {
				sold, _ = victim.sold.Sub(delta)
			}
		}
		bought, err := encoding.Convert(sold, ps, pb)
		if err != nil {
			return &orderFault{id: victim.order.ID, kind: KindArithmeticOverflow, err: err}
		}
		ob.log.Debugf("repair token %d: deficit %s, order %s sold %s -> %s", t, deficit, victim.order.ID, victim.sold, sold)
		victim.sold, victim.bought = sold, bought
	}
}
