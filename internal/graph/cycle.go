package graph

// FindCycle 深度优先查找第一个所有边都满足 open 的有向环，返回环上边下标（按行进方向），没有则返回 nil。
// 节点按下标顺序作为起点，出边按 (From, To) 顺序展开，结果只取决于图本身。
func (g *Graph) FindCycle(open func(edge int) bool) []int {
	const (
		white = iota
		grey
		black
	)
	n := len(g.tokens)
	color := make([]int, n)
	// via[v] 进入 v 所用的边
	via := make([]int, n)

	type frame struct {
		node int
		next int
	}

	for root := 0; root < n; root++ {
		if color[root] != white {
			continue
		}
		color[root] = grey
		via[root] = -1
		stack := []frame{{node: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			out := g.out[top.node]
			if top.next == len(out) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			ei := out[top.next]
			top.next++
			if !open(ei) {
				continue
			}
			to := g.edges[ei].To
			switch color[to] {
			case white:
				color[to] = grey
				via[to] = ei
				stack = append(stack, frame{node: to})
			case grey:
				return g.collect(via, ei)
			}
		}
	}
	return nil
}

// collect 从闭合边 closing 回溯到环的起点
func (g *Graph) collect(via []int, closing int) []int {
	head := g.edges[closing].To
	cycle := []int{closing}
	for v := g.edges[closing].From; v != head; v = g.edges[via[v]].From {
		cycle = append(cycle, via[v])
	}
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

// Arc 残量图中的弧：边 Edge 的正向（增加流量）或反向（退回流量）
type Arc struct {
	Edge    int
	Reverse bool
}

// ImprovingCycle 在残量图中找一个正向弧多于反向弧的环，沿它推流可以增加总流量。
// forward(e) 表示边 e 还能增加流量，backward(e) 表示边 e 上已有流量可退回。
// 以正向 -1、反向 +1 为代价做 Bellman-Ford（所有节点距离从 0 开始），没有负环时返回 nil。
func (g *Graph) ImprovingCycle(forward, backward func(edge int) bool) []Arc {
	type residual struct {
		from, to int
		arc      Arc
		cost     int64
	}
	var arcs []residual
	for i := range g.edges {
		e := &g.edges[i]
		if forward(i) {
			arcs = append(arcs, residual{from: e.From, to: e.To, arc: Arc{Edge: i}, cost: -1})
		}
		if backward(i) {
			arcs = append(arcs, residual{from: e.To, to: e.From, arc: Arc{Edge: i, Reverse: true}, cost: 1})
		}
	}

	n := len(g.tokens)
	dist := make([]int64, n)
	pred := make([]int, n)
	for i := range pred {
		pred[i] = -1
	}
	last := -1
	for pass := 0; pass <= n; pass++ {
		last = -1
		for j := range arcs {
			a := &arcs[j]
			if d := dist[a.from] + a.cost; d < dist[a.to] {
				dist[a.to] = d
				pred[a.to] = j
				last = a.to
			}
		}
		if last < 0 {
			return nil
		}
	}

	// 第 n+1 轮仍有松弛：沿前驱回退 n 步落在环上
	v := last
	for i := 0; i < n; i++ {
		if pred[v] < 0 {
			return nil
		}
		v = arcs[pred[v]].from
	}
	var cycle []Arc
	for u := v; ; {
		a := arcs[pred[u]]
		cycle = append(cycle, a.arc)
		u = a.from
		if u == v {
			break
		}
	}
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}
