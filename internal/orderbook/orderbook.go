package orderbook

import (
	"sort"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/graph"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoNumeraire 记账单位不在代币列表中，无法产出任何结果
	ErrNoNumeraire = errors.New("numeraire not among listed tokens")
	// ErrUnsolvable 迭代上限内没有得到稳定、无负环的价格
	ErrUnsolvable = errors.New("no stable price vector within iteration bound")
)

var log = logrus.WithField("component", "orderbook")

// Option 订单簿选项
type Option func(*Orderbook)

// WithMaxIterations 求解循环的迭代上限，<= 0 使用默认值（活跃订单数 + 1）
func WithMaxIterations(n int) Option {
	return func(ob *Orderbook) { ob.maxIterations = n }
}

// WithLogger 指定日志上下文
func WithLogger(entry *logrus.Entry) Option {
	return func(ob *Orderbook) {
		if entry != nil {
			ob.log = entry
		}
	}
}

// entry 订单簿内的一笔订单，remaining 是唯一可变状态且只减不增
type entry struct {
	order     encoding.Order
	remaining encoding.Amount
}

// Orderbook 一个批次的订单集合与求解状态。非并发安全，每次求解独占一个实例。
type Orderbook struct {
	tokens    []encoding.TokenID
	listed    map[encoding.TokenID]struct{}
	numeraire encoding.TokenID

	// entries 按 OrderID 升序
	entries []*entry
	byID    map[encoding.OrderID]*entry

	// ingest 入簿阶段产生的诊断
	ingest []Diagnostic

	maxIterations int
	log           *logrus.Entry
}

// New 创建订单簿并入簿订单。
// 不合法的订单（自成交对、零卖出量、未列出的代币、重复 ID）被跳过并记入诊断；
// 记账单位不在 tokens 中返回 ErrNoNumeraire。
func New(tokens []encoding.TokenID, numeraire encoding.TokenID, orders []encoding.Order, opts ...Option) (*Orderbook, error) {
	ob := &Orderbook{
		listed:    make(map[encoding.TokenID]struct{}, len(tokens)),
		numeraire: numeraire,
		byID:      make(map[encoding.OrderID]*entry, len(orders)),
		log:       log,
	}
	for _, opt := range opts {
		opt(ob)
	}

	for _, t := range tokens {
		if _, dup := ob.listed[t]; dup {
			continue
		}
		ob.listed[t] = struct{}{}
		ob.tokens = append(ob.tokens, t)
	}
	sort.Slice(ob.tokens, func(i, j int) bool { return ob.tokens[i] < ob.tokens[j] })
	if _, ok := ob.listed[numeraire]; !ok {
		return nil, errors.Wrapf(ErrNoNumeraire, "numeraire %d", numeraire)
	}

	// 同一 ID 出现多次时全部拒绝，结果不依赖输入顺序
	counts := make(map[encoding.OrderID]int, len(orders))
	for i := range orders {
		counts[orders[i].ID]++
	}

	for i := range orders {
		o := orders[i]
		if err := ob.check(&o, counts[o.ID]); err != nil {
			d := orderDiagnostic(KindMalformedInput, o.ID, err)
			d.Index = i
			ob.ingest = append(ob.ingest, d)
			ob.log.Warnf("skip order #%d: %v", i, err)
			continue
		}
		e := &entry{order: o, remaining: o.SellAmount}
		ob.entries = append(ob.entries, e)
		ob.byID[o.ID] = e
	}
	sort.Slice(ob.entries, func(i, j int) bool { return ob.entries[i].order.ID.Less(ob.entries[j].order.ID) })

	ob.log.Debugf("orderbook: %d tokens, %d orders accepted, %d rejected", len(ob.tokens), len(ob.entries), len(ob.ingest))
	return ob, nil
}

func (ob *Orderbook) check(o *encoding.Order, count int) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if _, ok := ob.listed[o.SellToken]; !ok {
		return errors.Wrapf(encoding.ErrMalformedInput, "order %s: sell token %d not listed", o.ID, o.SellToken)
	}
	if _, ok := ob.listed[o.BuyToken]; !ok {
		return errors.Wrapf(encoding.ErrMalformedInput, "order %s: buy token %d not listed", o.ID, o.BuyToken)
	}
	if count > 1 {
		return errors.Wrapf(encoding.ErrMalformedInput, "order %s: duplicate id (%d copies)", o.ID, count)
	}
	return nil
}

// Numeraire 记账单位
func (ob *Orderbook) Numeraire() encoding.TokenID { return ob.numeraire }

// Tokens 列出的代币（升序、去重）
func (ob *Orderbook) Tokens() []encoding.TokenID {
	return append([]encoding.TokenID(nil), ob.tokens...)
}

// Len 入簿订单数
func (ob *Orderbook) Len() int { return len(ob.entries) }

// Active 剩余数量大于 0 的订单数
func (ob *Orderbook) Active() int {
	n := 0
	for _, e := range ob.entries {
		if !e.remaining.IsZero() {
			n++
		}
	}
	return n
}

// Remaining 订单剩余可卖数量
func (ob *Orderbook) Remaining(id encoding.OrderID) (encoding.Amount, bool) {
	e, ok := ob.byID[id]
	if !ok {
		return encoding.Amount{}, false
	}
	return e.remaining, true
}

// Residual 仍有剩余数量的订单，卖出量为剩余量，买入量按原限价等比缩放并向上取整，限价不会变松
func (ob *Orderbook) Residual() []encoding.Order {
	var out []encoding.Order
	for _, e := range ob.entries {
		if e.remaining.IsZero() {
			continue
		}
		o := e.order
		buy, err := encoding.MulDivCeil(o.BuyAmount, e.remaining, o.SellAmount)
		if err != nil {
			// B*R/S <= B，不会溢出
			buy = o.BuyAmount
		}
		o.SellAmount = e.remaining
		o.BuyAmount = buy
		out = append(out, o)
	}
	return out
}

// offers 当前活跃订单的只读快照
func (ob *Orderbook) offers() []graph.Offer {
	out := make([]graph.Offer, 0, len(ob.entries))
	for _, e := range ob.entries {
		if e.remaining.IsZero() {
			continue
		}
		out = append(out, graph.Offer{Order: e.order, Remaining: e.remaining})
	}
	return out
}

// prune 把订单移出活跃集（剩余数量清零）
func (ob *Orderbook) prune(id encoding.OrderID) {
	if e, ok := ob.byID[id]; ok {
		e.remaining = encoding.Amount{}
	}
}
