package encoding

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// 数值表示：
// - Amount: 代币最小单位的 128 位无符号整数
// - Price:  128 位无符号定点数，分母为 PriceScale（1e18）
// - Value:  Amount × Price 的 256 位乘积，用于精确比较与价值流记账
//
// 所有运算都做溢出检查，溢出即返回 ErrArithmeticOverflow，绝不回绕。

const (
	// AmountBits 数量与价格的位宽
	AmountBits = 128
	// PriceDecimals 价格定点小数位数
	PriceDecimals = 18
)

var (
	priceScale = uint256.NewInt(1_000_000_000_000_000_000)

	// PriceOne 记账单位（numéraire）的价格
	PriceOne = Price{v: *priceScale}
	// MaxAmount 2^128-1
	MaxAmount = Amount{v: *new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), AmountBits), uint256.NewInt(1))}
)

func fits128(x *uint256.Int) bool {
	return x.BitLen() <= AmountBits
}

// Amount 128 位无符号数量
type Amount struct {
	v uint256.Int
}

// NewAmount 从 uint64 构造
func NewAmount(x uint64) Amount {
	return Amount{v: *uint256.NewInt(x)}
}

// AmountFromBig 从 big.Int 构造，负数或超过 128 位返回错误
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, malformed("negative amount")
	}
	if b.BitLen() > AmountBits {
		return Amount{}, overflow("amount %s exceeds 128 bits", b.String())
	}
	var a Amount
	a.v.SetFromBig(b)
	return a, nil
}

// ParseAmount 解析十进制整数字符串
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, malformed("invalid amount %q", s)
	}
	return AmountFromBig(b)
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp 比较：-1 / 0 / 1
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Big() *big.Int { return a.v.ToBig() }

func (a Amount) String() string { return a.v.ToBig().String() }

// Uint64 截断到 uint64（仅用于日志与测试）
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

// Add 加法
func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, of := z.v.AddOverflow(&a.v, &b.v); of || !fits128(&z.v) {
		return Amount{}, overflow("%s + %s", a, b)
	}
	return z, nil
}

// Sub 减法，结果为负即下溢
func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, of := z.v.SubOverflow(&a.v, &b.v); of {
		return Amount{}, overflow("%s - %s underflows", a, b)
	}
	return z, nil
}

// Mul 乘法
func (a Amount) Mul(b Amount) (Amount, error) {
	var z Amount
	if _, of := z.v.MulOverflow(&a.v, &b.v); of || !fits128(&z.v) {
		return Amount{}, overflow("%s * %s", a, b)
	}
	return z, nil
}

// Div 向下取整除法
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, overflow("%s / 0", a)
	}
	var z Amount
	z.v.Div(&a.v, &b.v)
	return z, nil
}

// MulDiv 计算 floor(a*b/c)，中间结果 512 位，无精度损失
func MulDiv(a, b, c Amount) (Amount, error) {
	z, err := mulDiv(&a.v, &b.v, &c.v, false)
	if err != nil {
		return Amount{}, err
	}
	return Amount{v: *z}, nil
}

// MulDivCeil 计算 ceil(a*b/c)
func MulDivCeil(a, b, c Amount) (Amount, error) {
	z, err := mulDiv(&a.v, &b.v, &c.v, true)
	if err != nil {
		return Amount{}, err
	}
	return Amount{v: *z}, nil
}

func mulDiv(x, y, d *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, overflow("division by zero")
	}
	z, of := new(uint256.Int).MulDivOverflow(x, y, d)
	if of {
		return nil, overflow("%s * %s / %s", x.ToBig(), y.ToBig(), d.ToBig())
	}
	if roundUp {
		// x*y 可能超过 256 位，余数用 MulMod 按全精度计算
		var rem uint256.Int
		rem.MulMod(x, y, d)
		if !rem.IsZero() {
			if _, of := z.AddOverflow(z, uint256.NewInt(1)); of {
				return nil, overflow("ceil overflow")
			}
		}
	}
	if !fits128(z) {
		return nil, overflow("result %s exceeds 128 bits", z.ToBig())
	}
	return z, nil
}

// MinAmount 较小值
func MinAmount(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Decimal 按代币精度转换为可读数值
func (a Amount) Decimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(a.Big(), -decimals)
}

// Price 价格定点数（分母 1e18）
type Price struct {
	v uint256.Int
}

// NewPrice 由原始定点整数构造（raw = price * 1e18）
func NewPrice(raw Amount) (Price, error) {
	if raw.IsZero() {
		return Price{}, malformed("zero price")
	}
	return Price{v: raw.v}, nil
}

// PriceFromRatio 构造 num/den 对应的价格（向下取整）
func PriceFromRatio(num, den Amount) (Price, error) {
	z, err := mulDiv(&num.v, priceScale, &den.v, false)
	if err != nil {
		return Price{}, err
	}
	if z.IsZero() {
		return Price{}, overflow("price %s/%s underflows", num, den)
	}
	return Price{v: *z}, nil
}

// ParsePrice 解析十进制小数，例如 "1.5"
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Price{}, malformed("invalid price %q", s)
	}
	raw, err := AmountFromBig(d.Shift(PriceDecimals).Truncate(0).BigInt())
	if err != nil {
		return Price{}, err
	}
	return NewPrice(raw)
}

func (p Price) IsZero() bool { return p.v.IsZero() }

func (p Price) Cmp(q Price) int { return p.v.Cmp(&q.v) }

// Raw 返回定点整数表示
func (p Price) Raw() Amount { return Amount{v: p.v} }

func (p Price) String() string { return p.Decimal().String() }

// Decimal 可读价格
func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(p.v.ToBig(), -PriceDecimals)
}

// MulRatio 计算 floor(p*num/den)，结果为 0 视为下溢
func (p Price) MulRatio(num, den Amount) (Price, error) {
	z, err := mulDiv(&p.v, &num.v, &den.v, false)
	if err != nil {
		return Price{}, err
	}
	if z.IsZero() {
		return Price{}, overflow("price %s*%s/%s underflows", p.Raw(), num, den)
	}
	return Price{v: *z}, nil
}

func (p Price) MarshalText() ([]byte, error) {
	return []byte(p.Decimal().String()), nil
}

func (p *Price) UnmarshalText(text []byte) error {
	v, err := ParsePrice(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Value 数量×价格（256 位，不除以分母）
type Value struct {
	v uint256.Int
}

// ValueOf 计算 a*p，128×128 位不可能溢出 256 位
func ValueOf(a Amount, p Price) Value {
	var z Value
	z.v.Mul(&a.v, &p.v)
	return z
}

func (x Value) IsZero() bool { return x.v.IsZero() }

func (x Value) Cmp(y Value) int { return x.v.Cmp(&y.v) }

func (x Value) String() string { return x.v.ToBig().String() }

func (x Value) Add(y Value) (Value, error) {
	var z Value
	if _, of := z.v.AddOverflow(&x.v, &y.v); of {
		return Value{}, overflow("value %s + %s", x, y)
	}
	return z, nil
}

func (x Value) Sub(y Value) (Value, error) {
	var z Value
	if _, of := z.v.SubOverflow(&x.v, &y.v); of {
		return Value{}, overflow("value %s - %s underflows", x, y)
	}
	return z, nil
}

// MinValue 较小值
func MinValue(x, y Value) Value {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// AmountAt 价值换算回数量：floor(x/p)
func (x Value) AmountAt(p Price) (Amount, error) {
	if p.IsZero() {
		return Amount{}, overflow("value / zero price")
	}
	var z uint256.Int
	z.Div(&x.v, &p.v)
	if !fits128(&z) {
		return Amount{}, overflow("value %s at price %s exceeds 128 bits", x, p)
	}
	return Amount{v: z}, nil
}

// Convert 按统一价格把 from 代币数量换算为 to 代币数量：floor(a*from/to)
func Convert(a Amount, from, to Price) (Amount, error) {
	z, err := mulDiv(&a.v, &from.v, &to.v, false)
	if err != nil {
		return Amount{}, err
	}
	return Amount{v: *z}, nil
}

// Profitable 精确判断卖出 sell 换回 buy 在价格 ps/pb 下是否不亏：ps*sell >= pb*buy
func Profitable(sell, buy Amount, ps, pb Price) bool {
	return ValueOf(sell, ps).Cmp(ValueOf(buy, pb)) >= 0
}
