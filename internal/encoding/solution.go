package encoding

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SolutionVersion 解的编码版本
const SolutionVersion byte = 0x01

const (
	priceEntrySize = 2 + 16
	fillEntrySize  = common.AddressLength + 2 + 16
)

// Solution 一个批次的结算结果：统一价格 + 每笔订单的成交卖出数量
type Solution struct {
	Numeraire TokenID
	Prices    map[TokenID]Price
	// Unpriced 与记账单位不连通、价格未定义的代币（升序）
	Unpriced []TokenID
	Fills    map[OrderID]Amount
}

// NewSolution 创建空解，记账单位价格为 1
func NewSolution(numeraire TokenID) *Solution {
	return &Solution{
		Numeraire: numeraire,
		Prices:    map[TokenID]Price{numeraire: PriceOne},
		Fills:     map[OrderID]Amount{},
	}
}

// Price 查询代币价格，未定义返回 false
func (s *Solution) Price(t TokenID) (Price, bool) {
	p, ok := s.Prices[t]
	return p, ok
}

// Fill 查询订单成交量，未出现的订单视为 0
func (s *Solution) Fill(id OrderID) Amount {
	return s.Fills[id]
}

// PricedTokens 有价格的代币（升序）
func (s *Solution) PricedTokens() []TokenID {
	out := make([]TokenID, 0, len(s.Prices))
	for t := range s.Prices {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OrderIDs 有成交记录的订单（升序）
func (s *Solution) OrderIDs() []OrderID {
	out := make([]OrderID, 0, len(s.Fills))
	for id := range s.Fills {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Hash 规范编码的 keccak256，作为解的内容标识
func (s *Solution) Hash() (common.Hash, error) {
	data, err := EncodeSolution(s)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// EncodeSolution 规范编码。解本身不合法（零价格、记账单位价格不为 1 等）时返回错误
func EncodeSolution(s *Solution) ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	tokens := s.PricedTokens()
	ids := s.OrderIDs()

	size := 1 + 2 + 2 + len(tokens)*priceEntrySize + 2 + len(s.Unpriced)*2 + 4 + len(ids)*fillEntrySize
	out := make([]byte, 0, size)
	out = append(out, SolutionVersion)
	out = binary.BigEndian.AppendUint16(out, uint16(s.Numeraire))

	out = binary.BigEndian.AppendUint16(out, uint16(len(tokens)))
	for _, t := range tokens {
		var entry [priceEntrySize]byte
		binary.BigEndian.PutUint16(entry[0:2], uint16(t))
		putAmount(entry[2:], s.Prices[t].Raw())
		out = append(out, entry[:]...)
	}

	out = binary.BigEndian.AppendUint16(out, uint16(len(s.Unpriced)))
	for _, t := range s.Unpriced {
		out = binary.BigEndian.AppendUint16(out, uint16(t))
	}

	out = binary.BigEndian.AppendUint32(out, uint32(len(ids)))
	for _, id := range ids {
		var entry [fillEntrySize]byte
		copy(entry[0:20], id.Owner[:])
		binary.BigEndian.PutUint16(entry[20:22], id.Index)
		putAmount(entry[22:], s.Fills[id])
		out = append(out, entry[:]...)
	}
	return out, nil
}

func (s *Solution) validate() error {
	if p, ok := s.Prices[s.Numeraire]; !ok || p.Cmp(PriceOne) != 0 {
		return malformed("numeraire %d must be priced at 1", s.Numeraire)
	}
	if len(s.Prices) > 0xffff || len(s.Unpriced) > 0xffff {
		return malformed("too many tokens")
	}
	for t, p := range s.Prices {
		if p.IsZero() {
			return malformed("token %d has zero price", t)
		}
	}
	for i, t := range s.Unpriced {
		if i > 0 && s.Unpriced[i-1] >= t {
			return malformed("unpriced tokens not strictly ascending")
		}
		if _, ok := s.Prices[t]; ok {
			return malformed("token %d both priced and unpriced", t)
		}
	}
	return nil
}

type reader struct {
	data []byte
	err  error
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = malformed("truncated solution: need %d bytes for %s, have %d", n, what, len(r.data))
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) uint16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32(what string) uint32 {
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// DecodeSolution 解码规范编码的解
func DecodeSolution(data []byte) (*Solution, error) {
	r := &reader{data: data}
	v := r.take(1, "version")
	if r.err != nil {
		return nil, r.err
	}
	if v[0] != SolutionVersion {
		return nil, malformed("unknown solution version %d", v[0])
	}

	s := &Solution{
		Numeraire: TokenID(r.uint16("numeraire")),
		Prices:    map[TokenID]Price{},
		Fills:     map[OrderID]Amount{},
	}

	n := int(r.uint16("price count"))
	var last TokenID
	for i := 0; i < n && r.err == nil; i++ {
		b := r.take(priceEntrySize, "price entry")
		if b == nil {
			break
		}
		t := TokenID(binary.BigEndian.Uint16(b[0:2]))
		if i > 0 && t <= last {
			return nil, malformed("price tokens not strictly ascending at %d", i)
		}
		last = t
		p, err := NewPrice(readAmount(b[2:]))
		if err != nil {
			return nil, malformed("token %d: zero price", t)
		}
		s.Prices[t] = p
	}

	m := int(r.uint16("unpriced count"))
	for i := 0; i < m && r.err == nil; i++ {
		t := TokenID(r.uint16("unpriced token"))
		if r.err != nil {
			break
		}
		s.Unpriced = append(s.Unpriced, t)
	}

	k := int(r.uint32("fill count"))
	var lastID OrderID
	for i := 0; i < k && r.err == nil; i++ {
		b := r.take(fillEntrySize, "fill entry")
		if b == nil {
			break
		}
		var id OrderID
		copy(id.Owner[:], b[0:20])
		id.Index = binary.BigEndian.Uint16(b[20:22])
		if i > 0 && !lastID.Less(id) {
			return nil, malformed("fill order ids not strictly ascending at %d", i)
		}
		lastID = id
		s.Fills[id] = readAmount(b[22:])
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.data) != 0 {
		return nil, malformed("%d trailing bytes after solution", len(r.data))
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
