package graph

import (
	"github.com/betbot/batchauction/internal/encoding"
	"github.com/pkg/errors"
)

// Paths 单源最短路结果（对数价格）
type Paths struct {
	g      *Graph
	source int
	dist   []int64
	reach  []bool
	parent []int
	order  []int
}

// Source 源点代币
func (p *Paths) Source() encoding.TokenID { return p.g.tokens[p.source] }

// Reachable 代币是否可从源点到达
func (p *Paths) Reachable(t encoding.TokenID) bool {
	n, ok := p.g.index[t]
	return ok && p.reach[n]
}

// Distance 源点到代币的最短路长度（权重单位），不可达返回 false
func (p *Paths) Distance(t encoding.TokenID) (encoding.Weight, bool) {
	n, ok := p.g.index[t]
	if !ok || !p.reach[n] {
		return 0, false
	}
	return encoding.Weight(p.dist[n]), true
}

// Parent 最短路树中指向该代币的边，源点与不可达代币返回 false
func (p *Paths) Parent(t encoding.TokenID) (int, bool) {
	n, ok := p.g.index[t]
	if !ok || p.parent[n] < 0 {
		return 0, false
	}
	return p.parent[n], true
}

// Order 可达代币按树序排列：父节点总在子节点之前，源点第一个
func (p *Paths) Order() []encoding.TokenID {
	out := make([]encoding.TokenID, len(p.order))
	for i, n := range p.order {
		out[i] = p.g.tokens[n]
	}
	return out
}

// ShortestPaths Bellman-Ford：最多 |V|-1 轮松弛（无更新则提前结束），再做一轮检测。
// 检测轮仍有边可松弛时返回 *NegativeCycle。
func (g *Graph) ShortestPaths(source encoding.TokenID) (*Paths, error) {
	src, ok := g.index[source]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownToken, "source %d", source)
	}
	n := len(g.tokens)
	p := &Paths{
		g:      g,
		source: src,
		dist:   make([]int64, n),
		reach:  make([]bool, n),
		parent: make([]int, n),
	}
	for i := range p.parent {
		p.parent[i] = -1
	}
	p.reach[src] = true

	for pass := 0; pass < n-1; pass++ {
		if !g.relax(p) {
			break
		}
	}
	for i := range g.edges {
		e := &g.edges[i]
		if !p.reach[e.From] {
			continue
		}
		d := p.dist[e.From] + int64(e.Weight)
		if !p.reach[e.To] || d < p.dist[e.To] {
			p.dist[e.To] = d
			p.parent[e.To] = i
			return nil, &NegativeCycle{Edges: g.cycleThrough(p.parent, e.To)}
		}
	}

	p.order = g.treeOrder(p)
	return p, nil
}

// Level 抬高环上第一条边的权重，使环上权重之和为 0。
// 只用于已按精确比率确认可行、负权只来自权重取整的环；权重只增不减，不会制造新的负环
func (g *Graph) Level(nc *NegativeCycle) {
	var sum int64
	for _, ei := range nc.Edges {
		sum += int64(g.edges[ei].Weight)
	}
	if sum < 0 {
		g.edges[nc.Edges[0]].Weight -= encoding.Weight(sum)
	}
}

// relax 按边顺序做一轮松弛，返回是否有更新
func (g *Graph) relax(p *Paths) bool {
	changed := false
	for i := range g.edges {
		e := &g.edges[i]
		if !p.reach[e.From] {
			continue
		}
		d := p.dist[e.From] + int64(e.Weight)
		if !p.reach[e.To] || d < p.dist[e.To] {
			p.reach[e.To] = true
			p.dist[e.To] = d
			p.parent[e.To] = i
			changed = true
		}
	}
	return changed
}

// cycleThrough 沿前驱回退 |V| 步必然落在环上，再绕环一周收集边
func (g *Graph) cycleThrough(parent []int, start int) []int {
	v := start
	for i := 0; i < len(g.tokens); i++ {
		v = g.edges[parent[v]].From
	}
	var rev []int
	u := v
	for {
		ei := parent[u]
		rev = append(rev, ei)
		u = g.edges[ei].From
		if u == v {
			break
		}
	}
	// 反转为行进方向
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// treeOrder 按父子关系做 BFS，子节点按边顺序展开
func (g *Graph) treeOrder(p *Paths) []int {
	children := make([][]int, len(g.tokens))
	for i := range g.edges {
		e := &g.edges[i]
		if p.parent[e.To] == i {
			children[e.From] = append(children[e.From], e.To)
		}
	}
	order := []int{p.source}
	for i := 0; i < len(order); i++ {
		order = append(order, children[order[i]]...)
	}
	return order
}
