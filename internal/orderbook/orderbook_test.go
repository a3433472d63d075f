package orderbook

import (
	"testing"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokA encoding.TokenID = 1
	tokB encoding.TokenID = 2
	tokC encoding.TokenID = 3
	tokD encoding.TokenID = 4
)

func oid(owner byte) encoding.OrderID {
	return encoding.OrderID{Owner: common.BytesToAddress([]byte{owner})}
}

func order(owner byte, sell, buy encoding.TokenID, sellAmt, buyAmt uint64) encoding.Order {
	return encoding.Order{
		ID:         oid(owner),
		SellToken:  sell,
		BuyToken:   buy,
		SellAmount: encoding.NewAmount(sellAmt),
		BuyAmount:  encoding.NewAmount(buyAmt),
	}
}

func kinds(ds []Diagnostic) []Kind {
	out := make([]Kind, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func TestNewRequiresNumeraire(t *testing.T) {
	_, err := New([]encoding.TokenID{tokA, tokB}, tokC, nil)
	assert.True(t, errors.Is(err, ErrNoNumeraire))
}

func TestNewRejectsMalformed(t *testing.T) {
	dup1 := order(7, tokA, tokB, 10, 5)
	dup2 := order(7, tokB, tokA, 10, 5)
	ob, err := New([]encoding.TokenID{tokA, tokB, tokA}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
		order(2, tokA, tokA, 100, 50), // 自成交对
		order(3, tokA, tokB, 0, 50),   // 零卖出量
		order(4, tokA, tokD, 100, 50), // 未列出的代币
		dup1,
		dup2,
	})
	require.NoError(t, err)
	assert.Equal(t, []encoding.TokenID{tokA, tokB}, ob.Tokens())
	assert.Equal(t, 1, ob.Len())

	require.Len(t, ob.ingest, 5)
	indexes := make([]int, 0, len(ob.ingest))
	for _, d := range ob.ingest {
		assert.Equal(t, KindMalformedInput, d.Kind)
		assert.True(t, d.HasOrder)
		indexes = append(indexes, d.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, indexes)
}

// 场景 A：只有 A->B 单边，没有反向流动性
func TestSolveScenarioSingleOrder(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokB, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)

	sol := res.Solution
	assert.Equal(t, map[encoding.TokenID]encoding.Price{tokB: encoding.PriceOne}, sol.Prices)
	assert.Equal(t, []encoding.TokenID{tokA}, sol.Unpriced)
	assert.True(t, sol.Fill(oid(1)).IsZero())
	assert.Empty(t, res.Trades)
	assert.Equal(t, []Kind{KindUnfillable, KindDisconnectedToken}, kinds(res.Diagnostics))
	assert.Equal(t, 0, ob.Active())
}

// 场景 B：A/B 双向订单，B 侧的 80 B 只需用掉 50
func TestSolveScenarioTwoSided(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
		order(2, tokB, tokA, 80, 40),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Diagnostics)

	sol := res.Solution
	pB, ok := sol.Price(tokB)
	require.True(t, ok)
	assert.Equal(t, "2", pB.String())
	assert.Equal(t, "100", sol.Fill(oid(1)).String())
	assert.Equal(t, "50", sol.Fill(oid(2)).String())

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "50", res.Trades[0].Bought.String())
	assert.Equal(t, "100", res.Trades[1].Bought.String())

	for tok, b := range res.Balances() {
		assert.Zero(t, b.Sign(), "token %d", tok)
	}

	rem, ok := ob.Remaining(oid(2))
	require.True(t, ok)
	assert.Equal(t, "30", rem.String())
	rem, _ = ob.Remaining(oid(1))
	assert.True(t, rem.IsZero())

	residual := ob.Residual()
	require.Len(t, residual, 1)
	assert.Equal(t, "30", residual[0].SellAmount.String())
	assert.Equal(t, "15", residual[0].BuyAmount.String())
}

// 场景 C1：三方兼容的环 A->B->C->A，整体通过循环流成交
func TestSolveScenarioCompatibleRing(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB, tokC}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 90),
		order(2, tokB, tokC, 100, 90),
		order(3, tokC, tokA, 100, 90),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)

	assert.Equal(t, "100", res.Solution.Fill(oid(1)).String())
	assert.Equal(t, "90", res.Solution.Fill(oid(2)).String())
	assert.Equal(t, "81", res.Solution.Fill(oid(3)).String())

	bal := res.Balances()
	assert.Equal(t, int64(1), bal[tokA].Int64(), "rounding dust stays in the batch")
	assert.Zero(t, bal[tokB].Sign())
	assert.Zero(t, bal[tokC].Sign())
	assertRational(t, ob, res)
}

// 场景 C2：环上每一步都要求 1.1 倍，构成负环；剔除一笔后剩下的链没有对手方
func TestSolveScenarioOverDemandingRing(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB, tokC}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 110),
		order(2, tokB, tokC, 100, 110),
		order(3, tokC, tokA, 100, 110),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, KindNegativeCycle, res.Diagnostics[0].Kind)
	assert.Equal(t, oid(3), res.Diagnostics[0].Order, "equal weights: larger id is pruned")

	assert.Empty(t, res.Trades)
	assert.Len(t, res.Solution.Prices, 3)
	assert.Empty(t, res.Solution.Unpriced)

	_, err = encoding.EncodeSolution(res.Solution)
	require.NoError(t, err)
}

// 场景 D：自成交对订单在入簿时被拒绝，其余订单正常求解
func TestSolveScenarioMalformedOrder(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
		order(9, tokB, tokB, 10, 10),
		order(2, tokB, tokA, 80, 40),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, KindMalformedInput, d.Kind)
	assert.Equal(t, oid(9), d.Order)
	assert.Equal(t, 1, d.Index)

	assert.Equal(t, "100", res.Solution.Fill(oid(1)).String())
	assert.Equal(t, "50", res.Solution.Fill(oid(2)).String())
	_, listed := res.Solution.Fills[oid(9)]
	assert.False(t, listed)
}

func TestSolveEmptyBatch(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokC, tokA, tokB}, tokB, nil)
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, []encoding.TokenID{tokA, tokC}, res.Solution.Unpriced)
	assert.Equal(t, []Kind{KindDisconnectedToken, KindDisconnectedToken}, kinds(res.Diagnostics))

	p, ok := res.Solution.Price(tokB)
	require.True(t, ok)
	assert.Equal(t, 0, p.Cmp(encoding.PriceOne))
}

func TestSolveBalancedRingClears(t *testing.T) {
	// 两笔恰好互逆的订单：取整后的权重报告负环，精确比率之积为 1，环被拉平后成交
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
		order(2, tokB, tokA, 50, 100),
	})
	require.NoError(t, err)
	res, err := ob.Solve()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, "100", res.Solution.Fill(oid(1)).String())
	assert.Equal(t, "50", res.Solution.Fill(oid(2)).String())
	for tok, b := range res.Balances() {
		assert.Zero(t, b.Sign(), "token %d", tok)
	}
	assertRational(t, ob, res)
}

func TestSolveNearlyBalancedRingClears(t *testing.T) {
	// 比率之积 (1e12-1)/1e12 < 1，对数权重差远小于取整误差
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(1, tokA, tokB, 1_000_000_000_000, 999_999_999_999),
		order(2, tokB, tokA, 1_000_000_000_000, 1_000_000_000_000),
	})
	require.NoError(t, err)
	res, err := ob.Solve()
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, "1000000000000", res.Solution.Fill(oid(1)).String())
	assert.Equal(t, "999999999999", res.Solution.Fill(oid(2)).String())
	for tok, b := range res.Balances() {
		assert.GreaterOrEqual(t, b.Sign(), 0, "token %d", tok)
	}
	assertRational(t, ob, res)
}

func TestSolveMaximisesCirculation(t *testing.T) {
	// A=1, B=2, C=4。先找到的 A<->B 环只成交两笔；改走 A->B->C->A 总成交价值更大
	ob, err := New([]encoding.TokenID{tokA, tokB, tokC}, tokA, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
		order(2, tokB, tokA, 100, 50),
		order(3, tokB, tokC, 100, 50),
		order(4, tokC, tokA, 100, 50),
	})
	require.NoError(t, err)
	res, err := ob.Solve()
	require.NoError(t, err)

	assert.Equal(t, "100", res.Solution.Fill(oid(1)).String())
	assert.True(t, res.Solution.Fill(oid(2)).IsZero())
	assert.Equal(t, "50", res.Solution.Fill(oid(3)).String())
	assert.Equal(t, "25", res.Solution.Fill(oid(4)).String())
	require.Len(t, res.Trades, 3)
	for tok, b := range res.Balances() {
		assert.Zero(t, b.Sign(), "token %d", tok)
	}
	assertRational(t, ob, res)
}

func TestSolveApportionsByPriority(t *testing.T) {
	// 两笔同方向的卖单分享 50 B 的对手盘：限价低的先成交
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(5, tokA, tokB, 60, 24), // 0.4
		order(6, tokA, tokB, 60, 30), // 0.5，决定价格
		order(7, tokB, tokA, 50, 10),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	// p(B) = 60/30 = 2，B 侧价值 100，先给 5 号 60，再给 6 号 40
	assert.Equal(t, "60", res.Solution.Fill(oid(5)).String())
	assert.Equal(t, "40", res.Solution.Fill(oid(6)).String())
	assert.Equal(t, "50", res.Solution.Fill(oid(7)).String())
	assertRational(t, ob, res)
}

func TestSolveIterationLimit(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokB, []encoding.Order{
		order(1, tokA, tokB, 100, 50),
	}, WithMaxIterations(1))
	require.NoError(t, err)

	_, err = ob.Solve()
	assert.True(t, errors.Is(err, ErrUnsolvable))
}

func TestSolvePriceOverflowPrunesOrder(t *testing.T) {
	huge := order(1, tokA, tokB, 1, 1)
	huge.SellAmount = encoding.MaxAmount
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		huge,
		order(2, tokB, tokA, 10, 1),
	})
	require.NoError(t, err)

	res, err := ob.Solve()
	require.NoError(t, err)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, KindArithmeticOverflow, res.Diagnostics[0].Kind)
	assert.Equal(t, oid(1), res.Diagnostics[0].Order)
	assert.Empty(t, res.Trades)
}

func TestResidualKeepsLimitStrict(t *testing.T) {
	ob, err := New([]encoding.TokenID{tokA, tokB}, tokA, []encoding.Order{
		order(1, tokA, tokB, 3, 2),
	})
	require.NoError(t, err)
	ob.entries[0].remaining = encoding.NewAmount(2)

	res := ob.Residual()
	require.Len(t, res, 1)
	// ceil(2*2/3) = 2
	assert.Equal(t, "2", res[0].BuyAmount.String())
	assert.True(t, res[0].LimitRate().Cmp(ob.entries[0].order.LimitRate()) >= 0)
}

func TestKindText(t *testing.T) {
	text, err := KindNegativeCycle.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "negative_cycle", string(text))
	assert.Equal(t, "kind(42)", Kind(42).String())
}
