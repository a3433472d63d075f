package encoding

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testOrder(owner byte, index uint16, sell, buy TokenID, sellAmt, buyAmt uint64) Order {
	return Order{
		ID:         OrderID{Owner: common.BytesToAddress([]byte{owner}), Index: index},
		SellToken:  sell,
		BuyToken:   buy,
		SellAmount: NewAmount(sellAmt),
		BuyAmount:  NewAmount(buyAmt),
	}
}

func TestOrderLayout(t *testing.T) {
	o := testOrder(0xaa, 7, 1, 2, 100, 50)
	data := EncodeOrder(&o)
	require.Len(t, data, OrderSize)

	assert.Equal(t, byte(0xaa), data[19], "owner occupies bytes 0..20")
	assert.Equal(t, []byte{0, 7}, data[20:22])
	assert.Equal(t, []byte{0, 1}, data[22:24])
	assert.Equal(t, []byte{0, 2}, data[24:26])
	assert.Equal(t, byte(100), data[41], "sell amount big-endian in 26..42")
	assert.Equal(t, byte(50), data[57])

	got, err := DecodeOrder(data)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestDecodeOrdersReportsPerRecord(t *testing.T) {
	good := testOrder(1, 0, 1, 2, 10, 5)
	self := testOrder(2, 0, 3, 3, 10, 5)
	zero := testOrder(3, 0, 1, 2, 0, 5)
	later := testOrder(4, 0, 2, 1, 10, 5)

	data := EncodeOrders([]Order{good, self, zero, later})
	data = append(data, 0xde, 0xad)

	orders, errs := DecodeOrders(data)
	assert.Equal(t, []Order{good, later}, orders)
	require.Len(t, errs, 3)

	indexes := make([]int, 0, len(errs))
	for _, err := range errs {
		var rec *RecordError
		require.True(t, errors.As(err, &rec))
		assert.True(t, errors.Is(err, ErrMalformedInput))
		indexes = append(indexes, rec.Index)
	}
	assert.Equal(t, []int{1, 2, 4}, indexes)
}

func TestDecodeOrderWrongLength(t *testing.T) {
	_, err := DecodeOrder(make([]byte, OrderSize-1))
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestOrderIDOrdering(t *testing.T) {
	a := OrderID{Owner: common.BytesToAddress([]byte{1}), Index: 9}
	b := OrderID{Owner: common.BytesToAddress([]byte{2}), Index: 0}
	c := OrderID{Owner: common.BytesToAddress([]byte{2}), Index: 1}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
	assert.False(t, b.Less(b))
}

func sampleSolution(t *testing.T) *Solution {
	t.Helper()
	s := NewSolution(1)
	two, err := PriceFromRatio(NewAmount(2), NewAmount(1))
	require.NoError(t, err)
	s.Prices[3] = two
	s.Unpriced = []TokenID{2, 9}
	s.Fills[OrderID{Owner: common.BytesToAddress([]byte{5}), Index: 1}] = NewAmount(100)
	s.Fills[OrderID{Owner: common.BytesToAddress([]byte{4}), Index: 0}] = NewAmount(0)
	return s
}

func TestSolutionRoundTrip(t *testing.T) {
	s := sampleSolution(t)
	data, err := EncodeSolution(s)
	require.NoError(t, err)

	assert.Equal(t, SolutionVersion, data[0])
	want := 1 + 2 + 2 + 2*priceEntrySize + 2 + 2*2 + 4 + 2*fillEntrySize
	assert.Len(t, data, want)

	got, err := DecodeSolution(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	again, err := EncodeSolution(got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, again))

	h1, err := s.Hash()
	require.NoError(t, err)
	h2, err := got.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestEncodeSolutionRejectsInvalid(t *testing.T) {
	s := sampleSolution(t)
	delete(s.Prices, s.Numeraire)
	_, err := EncodeSolution(s)
	assert.True(t, errors.Is(err, ErrMalformedInput))

	s = sampleSolution(t)
	s.Prices[7] = Price{}
	_, err = EncodeSolution(s)
	assert.True(t, errors.Is(err, ErrMalformedInput), "zero price")

	s = sampleSolution(t)
	s.Unpriced = []TokenID{9, 2}
	_, err = EncodeSolution(s)
	assert.True(t, errors.Is(err, ErrMalformedInput), "unsorted unpriced")

	s = sampleSolution(t)
	s.Unpriced = []TokenID{3}
	_, err = EncodeSolution(s)
	assert.True(t, errors.Is(err, ErrMalformedInput), "priced and unpriced")
}

func TestDecodeSolutionMalformed(t *testing.T) {
	data, err := EncodeSolution(sampleSolution(t))
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"bad version", func(b []byte) []byte { b[0] = 0x02; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"trailing", func(b []byte) []byte { return append(b, 0) }},
		{"zero price", func(b []byte) []byte {
			// 第二个价格条目（代币 3）的价格字段清零
			off := 5 + priceEntrySize + 2
			for i := off; i < off+16; i++ {
				b[i] = 0
			}
			return b
		}},
		{"tokens not ascending", func(b []byte) []byte {
			// 第二个条目的代币改成 1，与第一个重复
			off := 5 + priceEntrySize
			b[off], b[off+1] = 0, 1
			return b
		}},
		{"fills not ascending", func(b []byte) []byte {
			fills := len(b) - 2*fillEntrySize
			first := append([]byte(nil), b[fills:fills+fillEntrySize]...)
			copy(b[fills:], b[fills+fillEntrySize:])
			copy(b[fills+fillEntrySize:], first)
			return b
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := tc.mutate(append([]byte(nil), data...))
			_, err := DecodeSolution(buf)
			assert.True(t, errors.Is(err, ErrMalformedInput), "got %v", err)
		})
	}
}

func TestOrderRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var o Order
		copy(o.ID.Owner[:], rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "owner"))
		o.ID.Index = rapid.Uint16().Draw(t, "index")
		o.SellToken = TokenID(rapid.Uint16().Draw(t, "sell"))
		o.BuyToken = TokenID(rapid.Uint16().Draw(t, "buy"))
		o.SellAmount = NewAmount(rapid.Uint64().Draw(t, "sellAmt"))
		o.BuyAmount = NewAmount(rapid.Uint64().Draw(t, "buyAmt"))

		got, err := DecodeOrder(EncodeOrder(&o))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != o {
			t.Fatalf("round trip mismatch: %v != %v", got, o)
		}
	})
}
