package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OrderSize 单条订单记录的字节长度
const OrderSize = common.AddressLength + 2 + 2 + 2 + 16 + 16

// TokenID 代币标识
type TokenID uint16

// OrderID 订单标识：所有者地址 + 该所有者下的订单序号
type OrderID struct {
	Owner common.Address
	Index uint16
}

// Less 全序：先按地址字节序，再按序号
func (id OrderID) Less(o OrderID) bool {
	if c := bytes.Compare(id.Owner[:], o.Owner[:]); c != 0 {
		return c < 0
	}
	return id.Index < o.Index
}

func (id OrderID) String() string {
	return fmt.Sprintf("%s/%d", id.Owner.Hex(), id.Index)
}

// Order 限价订单：最多卖出 SellAmount 的 SellToken，至少换回 BuyAmount 的 BuyToken
type Order struct {
	ID         OrderID
	SellToken  TokenID
	BuyToken   TokenID
	SellAmount Amount
	BuyAmount  Amount
}

// Validate 结构校验
func (o *Order) Validate() error {
	if o.SellToken == o.BuyToken {
		return malformed("order %s: sell token equals buy token (%d)", o.ID, o.SellToken)
	}
	if o.SellAmount.IsZero() {
		return malformed("order %s: zero sell amount", o.ID)
	}
	return nil
}

// LimitRate 限价（买入/卖出）
func (o *Order) LimitRate() Rate {
	return Rate{Num: o.BuyAmount, Den: o.SellAmount}
}

func (o Order) String() string {
	return fmt.Sprintf("%s sell %s of %d for >= %s of %d", o.ID, o.SellAmount, o.SellToken, o.BuyAmount, o.BuyToken)
}

func putAmount(dst []byte, a Amount) {
	b := a.v.Bytes32()
	copy(dst, b[16:])
}

func readAmount(src []byte) Amount {
	var a Amount
	a.v.SetBytes(src[:16])
	return a
}

// AppendOrder 追加订单的规范编码
func AppendOrder(dst []byte, o *Order) []byte {
	var buf [OrderSize]byte
	copy(buf[0:20], o.ID.Owner[:])
	binary.BigEndian.PutUint16(buf[20:22], o.ID.Index)
	binary.BigEndian.PutUint16(buf[22:24], uint16(o.SellToken))
	binary.BigEndian.PutUint16(buf[24:26], uint16(o.BuyToken))
	putAmount(buf[26:42], o.SellAmount)
	putAmount(buf[42:58], o.BuyAmount)
	return append(dst, buf[:]...)
}

// EncodeOrder 订单的规范编码（58 字节）
func EncodeOrder(o *Order) []byte {
	return AppendOrder(make([]byte, 0, OrderSize), o)
}

// DecodeOrder 解码单条订单，只做长度检查；语义校验见 Order.Validate
func DecodeOrder(data []byte) (Order, error) {
	if len(data) != OrderSize {
		return Order{}, malformed("order record has %d bytes, want %d", len(data), OrderSize)
	}
	var o Order
	copy(o.ID.Owner[:], data[0:20])
	o.ID.Index = binary.BigEndian.Uint16(data[20:22])
	o.SellToken = TokenID(binary.BigEndian.Uint16(data[22:24]))
	o.BuyToken = TokenID(binary.BigEndian.Uint16(data[24:26]))
	o.SellAmount = readAmount(data[26:42])
	o.BuyAmount = readAmount(data[42:58])
	return o, nil
}

// EncodeOrders 拼接多条订单记录
func EncodeOrders(orders []Order) []byte {
	out := make([]byte, 0, len(orders)*OrderSize)
	for i := range orders {
		out = AppendOrder(out, &orders[i])
	}
	return out
}

// DecodeOrders 解码拼接的订单记录。
// 每条记录独立报告错误（截断、校验失败），其余记录继续解码。
func DecodeOrders(data []byte) ([]Order, []error) {
	var (
		orders []Order
		errs   []error
	)
	for i := 0; len(data) > 0; i++ {
		if len(data) < OrderSize {
			errs = append(errs, &RecordError{Index: i, Err: malformed("truncated record: %d trailing bytes", len(data))})
			break
		}
		o, err := DecodeOrder(data[:OrderSize])
		data = data[OrderSize:]
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			errs = append(errs, &RecordError{Index: i, Err: err})
			continue
		}
		orders = append(orders, o)
	}
	return orders, errs
}
