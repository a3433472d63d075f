package encoding

import (
	"math"
	"math/big"
)

// WeightScale 对数权重的定点分母（2^32）
const WeightScale = 1 << 32

// Weight 对数域边权：-ln(rate) * WeightScale
//
// 取值范围：|ln(rate)| <= 128*ln2 ≈ 88.7，因此单条边权 < 2^39，
// 65536 个节点的路径和也远小于 int64 上限，Bellman-Ford 求和无需溢出检查。
type Weight int64

// Rate 订单限价：Num/Den = 买入数量/卖出数量（每卖出 1 单位至少换回的买入单位）
type Rate struct {
	Num Amount
	Den Amount
}

// Cmp 精确比较两个比率（256 位交叉相乘）
func (r Rate) Cmp(o Rate) int {
	var left, right Value
	left.v.Mul(&r.Num.v, &o.Den.v)
	right.v.Mul(&o.Num.v, &r.Den.v)
	return left.Cmp(right)
}

// Weight 计算 -ln(Num/Den) 的定点权重。
//
// 舍入规则：先向 -∞ 取整，再减 1。浮点误差只会让边看起来“要求更高”，
// 不会把原本不可行的环判成可行；恰好持平的环会被报告为负环，由 RingCmp 精确复核。
// 买入数量为 0 时按 1 处理（接受任意价格的订单）。
func (r Rate) Weight() Weight {
	num := r.Num
	if num.IsZero() {
		num = NewAmount(1)
	}
	den := r.Den
	if den.IsZero() {
		den = NewAmount(1)
	}
	w := (lnAmount(den) - lnAmount(num)) * WeightScale
	return Weight(math.Floor(w)) - 1
}

// RingCmp 精确比较一组比率之积与 1（ΠNum 对 ΠDen），买入数量为 0 按 1 处理。
// 返回 > 0 表示环上的要求整体无法满足
func RingCmp(rates []Rate) int {
	num, den := big.NewInt(1), big.NewInt(1)
	for _, r := range rates {
		n := r.Num
		if n.IsZero() {
			n = NewAmount(1)
		}
		num.Mul(num, n.Big())
		den.Mul(den, r.Den.Big())
	}
	return num.Cmp(den)
}

// Float64 近似值（仅用于日志）
func (r Rate) Float64() float64 {
	if r.Den.IsZero() {
		return math.Inf(1)
	}
	f, _ := new(big.Rat).SetFrac(r.Num.Big(), r.Den.Big()).Float64()
	return f
}

// lnAmount 计算 ln(a)，a > 0。用 mant*2^exp 分解避免大数转 float64 时丢失量级
func lnAmount(a Amount) float64 {
	f := new(big.Float).SetInt(a.Big())
	mant := new(big.Float)
	exp := f.MantExp(mant)
	m, _ := mant.Float64()
	return math.Log(m) + float64(exp)*math.Ln2
}
