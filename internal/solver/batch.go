package solver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/batchauction/internal/encoding"
)

// Batch 一个待求解的批次
type Batch struct {
	ID        string
	Numeraire encoding.TokenID
	Tokens    []encoding.TokenID
	Orders    []encoding.Order
	// RecordErrors 从规范字节加载时解码失败的记录，订单簿不会看到它们
	RecordErrors []error
}

// BatchFile 批次文件（YAML/JSON）。数量为最小单位的十进制字符串，owner 为十六进制地址
type BatchFile struct {
	ID        string        `yaml:"id" json:"id"`
	Numeraire uint16        `yaml:"numeraire" json:"numeraire"`
	Tokens    []uint16      `yaml:"tokens" json:"tokens"`
	Orders    []OrderRecord `yaml:"orders" json:"orders"`
}

// OrderRecord 批次文件中的一笔订单
type OrderRecord struct {
	Owner      string `yaml:"owner" json:"owner"`
	Index      uint16 `yaml:"index" json:"index"`
	SellToken  uint16 `yaml:"sell_token" json:"sell_token"`
	BuyToken   uint16 `yaml:"buy_token" json:"buy_token"`
	SellAmount string `yaml:"sell_amount" json:"sell_amount"`
	BuyAmount  string `yaml:"buy_amount" json:"buy_amount"`
}

// Batch 转换为求解输入。地址或数量无法解析、数量超出 128 位的订单记入 RecordErrors 并跳过，
// 其余订单照常求解；结构问题（自成交对、零数量）留给订单簿逐笔诊断。
func (f *BatchFile) Batch() (*Batch, error) {
	b := &Batch{
		ID:        strings.TrimSpace(f.ID),
		Numeraire: encoding.TokenID(f.Numeraire),
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	for _, t := range f.Tokens {
		b.Tokens = append(b.Tokens, encoding.TokenID(t))
	}
	for i, r := range f.Orders {
		o, err := r.order()
		if err != nil {
			// order 只返回 ErrMalformedInput / ErrArithmeticOverflow
			b.RecordErrors = append(b.RecordErrors, &encoding.RecordError{Index: i, Err: err})
			continue
		}
		b.Orders = append(b.Orders, o)
	}
	if len(b.Tokens) == 0 {
		b.Tokens = deriveTokens(b.Numeraire, b.Orders)
	}
	return b, nil
}

func (r OrderRecord) order() (encoding.Order, error) {
	owner := strings.TrimSpace(r.Owner)
	if !common.IsHexAddress(owner) {
		return encoding.Order{}, errors.Wrapf(encoding.ErrMalformedInput, "invalid owner address %q", r.Owner)
	}
	sell, err := encoding.ParseAmount(r.SellAmount)
	if err != nil {
		return encoding.Order{}, errors.Wrap(err, "sell_amount")
	}
	buy, err := encoding.ParseAmount(r.BuyAmount)
	if err != nil {
		return encoding.Order{}, errors.Wrap(err, "buy_amount")
	}
	return encoding.Order{
		ID:         encoding.OrderID{Owner: common.HexToAddress(owner), Index: r.Index},
		SellToken:  encoding.TokenID(r.SellToken),
		BuyToken:   encoding.TokenID(r.BuyToken),
		SellAmount: sell,
		BuyAmount:  buy,
	}, nil
}

// ParseBatch 解析批次文件内容，format 为 yaml 或 json
func ParseBatch(data []byte, format string) (*Batch, error) {
	var f BatchFile
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrap(err, "parse batch json")
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrap(err, "parse batch yaml")
		}
	default:
		return nil, errors.Errorf("unsupported batch format %q", format)
	}
	return f.Batch()
}

// LoadBatchFile 按扩展名加载 YAML/JSON 批次文件
func LoadBatchFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batch file")
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return ParseBatch(data, format)
}

// LoadOrderRecords 从规范订单字节加载批次。代币列表由订单与记账单位推出，
// 解码失败的记录保存在 RecordErrors 中，其余记录照常求解。
func LoadOrderRecords(path string, numeraire encoding.TokenID) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read order records")
	}
	orders, errs := encoding.DecodeOrders(data)
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id == "" {
		id = uuid.NewString()
	}
	return &Batch{
		ID:           id,
		Numeraire:    numeraire,
		Tokens:       deriveTokens(numeraire, orders),
		Orders:       orders,
		RecordErrors: errs,
	}, nil
}

// deriveTokens 订单涉及的代币加上记账单位（去重，升序由订单簿负责）
func deriveTokens(numeraire encoding.TokenID, orders []encoding.Order) []encoding.TokenID {
	seen := map[encoding.TokenID]bool{numeraire: true}
	out := []encoding.TokenID{numeraire}
	for _, o := range orders {
		for _, t := range []encoding.TokenID{o.SellToken, o.BuyToken} {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// File 批次的文件表示（用于写出示例或回放）
func (b *Batch) File() *BatchFile {
	f := &BatchFile{ID: b.ID, Numeraire: uint16(b.Numeraire)}
	for _, t := range b.Tokens {
		f.Tokens = append(f.Tokens, uint16(t))
	}
	for _, o := range b.Orders {
		f.Orders = append(f.Orders, OrderRecord{
			Owner:      o.ID.Owner.Hex(),
			Index:      o.ID.Index,
			SellToken:  uint16(o.SellToken),
			BuyToken:   uint16(o.BuyToken),
			SellAmount: o.SellAmount.String(),
			BuyAmount:  o.BuyAmount.String(),
		})
	}
	return f
}

func (b *Batch) String() string {
	return b.ID + " (" + strconv.Itoa(len(b.Orders)) + " orders)"
}
