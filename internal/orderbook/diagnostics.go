package orderbook

import (
	"fmt"

	"github.com/betbot/batchauction/internal/encoding"
)

// Kind 诊断类别
type Kind int

const (
	// KindMalformedInput 订单结构不合法，入簿时跳过
	KindMalformedInput Kind = iota + 1
	// KindArithmeticOverflow 定价或成交计算溢出，相关订单被剔除
	KindArithmeticOverflow
	// KindUnfillable 在候选价格下不可成交（亏损或代币无价格），订单被剔除
	KindUnfillable
	// KindNegativeCycle 订单处在负环上并决定了环的权重，被剔除
	KindNegativeCycle
	// KindDisconnectedToken 代币与记账单位不连通，价格未定义（仅提示）
	KindDisconnectedToken
)

func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed_input"
	case KindArithmeticOverflow:
		return "arithmetic_overflow"
	case KindUnfillable:
		return "unfillable"
	case KindNegativeCycle:
		return "negative_cycle"
	case KindDisconnectedToken:
		return "disconnected_token"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic 求解过程中就地恢复的问题。
// 订单类诊断带 Order（入簿阶段还带输入下标 Index），代币类诊断带 Token。
type Diagnostic struct {
	Kind     Kind
	Order    encoding.OrderID
	HasOrder bool
	Index    int
	Token    encoding.TokenID
	Message  string
}

func (d Diagnostic) String() string {
	if d.HasOrder {
		return fmt.Sprintf("%s: order %s: %s", d.Kind, d.Order, d.Message)
	}
	if d.Kind == KindDisconnectedToken {
		return fmt.Sprintf("%s: token %d: %s", d.Kind, d.Token, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

func orderDiagnostic(kind Kind, id encoding.OrderID, err error) Diagnostic {
	return Diagnostic{Kind: kind, Order: id, HasOrder: true, Message: err.Error()}
}
