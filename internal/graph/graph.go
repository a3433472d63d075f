package graph

import (
	"sort"

	"github.com/betbot/batchauction/internal/encoding"
)

// Offer 图看到的一笔活跃订单：订单本身 + 剩余可卖数量
type Offer struct {
	Order     encoding.Order
	Remaining encoding.Amount
}

// OrderRef 聚合边上单笔订单的明细
type OrderRef struct {
	ID        encoding.OrderID
	Rate      encoding.Rate
	Weight    encoding.Weight
	Remaining encoding.Amount
}

// Edge 有向边 sell token -> buy token，聚合同方向的全部订单
type Edge struct {
	From     int
	To       int
	Weight   encoding.Weight
	Capacity encoding.Amount
	// Orders 按分配优先级排序：限价低（最愿意卖）的在前，同价按 OrderID 升序
	Orders []OrderRef
}

// Binding 决定边权的订单：限价最高者，同价取 OrderID 较大者
func (e *Edge) Binding() OrderRef {
	return e.Orders[len(e.Orders)-1]
}

// Graph 代币为节点、订单聚合为边的有向图。
// 节点是按 TokenID 升序分配的整数下标，边只保存下标，不持有指针。
type Graph struct {
	tokens []encoding.TokenID
	index  map[encoding.TokenID]int
	edges  []Edge
	// out[n] 节点 n 的出边下标，按 (From, To) 顺序
	out [][]int
}

type pairKey struct {
	from, to encoding.TokenID
}

// Build 由活跃订单构建图，Remaining 为 0 的订单忽略
func Build(offers []Offer) (*Graph, error) {
	groups := make(map[pairKey][]OrderRef)
	seen := make(map[encoding.TokenID]struct{})
	for i := range offers {
		o := &offers[i]
		if o.Remaining.IsZero() {
			continue
		}
		rate := o.Order.LimitRate()
		k := pairKey{from: o.Order.SellToken, to: o.Order.BuyToken}
		groups[k] = append(groups[k], OrderRef{
			ID:        o.Order.ID,
			Rate:      rate,
			Weight:    rate.Weight(),
			Remaining: o.Remaining,
		})
		seen[k.from] = struct{}{}
		seen[k.to] = struct{}{}
	}

	g := &Graph{
		tokens: make([]encoding.TokenID, 0, len(seen)),
		index:  make(map[encoding.TokenID]int, len(seen)),
	}
	for t := range seen {
		g.tokens = append(g.tokens, t)
	}
	sort.Slice(g.tokens, func(i, j int) bool { return g.tokens[i] < g.tokens[j] })
	for i, t := range g.tokens {
		g.index[t] = i
	}

	keys := make([]pairKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})

	g.edges = make([]Edge, 0, len(keys))
	g.out = make([][]int, len(g.tokens))
	for _, k := range keys {
		refs := groups[k]
		sort.Slice(refs, func(i, j int) bool {
			if c := refs[i].Rate.Cmp(refs[j].Rate); c != 0 {
				return c < 0
			}
			return refs[i].ID.Less(refs[j].ID)
		})

		e := Edge{
			From:   g.index[k.from],
			To:     g.index[k.to],
			Weight: refs[0].Weight,
			Orders: refs,
		}
		for _, r := range refs {
			if r.Weight < e.Weight {
				e.Weight = r.Weight
			}
			c, err := e.Capacity.Add(r.Remaining)
			if err != nil {
				return nil, &OrderError{ID: r.ID, Err: err}
			}
			e.Capacity = c
		}
		g.out[e.From] = append(g.out[e.From], len(g.edges))
		g.edges = append(g.edges, e)
	}
	return g, nil
}

// Len 节点数
func (g *Graph) Len() int { return len(g.tokens) }

// Node 代币对应的节点下标
func (g *Graph) Node(t encoding.TokenID) (int, bool) {
	n, ok := g.index[t]
	return n, ok
}

// Token 节点下标对应的代币
func (g *Graph) Token(n int) encoding.TokenID { return g.tokens[n] }

// Tokens 全部节点代币（升序）
func (g *Graph) Tokens() []encoding.TokenID {
	return append([]encoding.TokenID(nil), g.tokens...)
}

// Edges 全部边，按 (From, To) 排序。调用方不得修改
func (g *Graph) Edges() []Edge { return g.edges }

// Edge 第 i 条边
func (g *Graph) Edge(i int) *Edge { return &g.edges[i] }

// Out 节点 n 的出边下标
func (g *Graph) Out(n int) []int { return g.out[n] }
