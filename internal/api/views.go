package api

import (
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/orderbook"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/config"
)

type priceView struct {
	Token  uint16 `json:"token"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type fillView struct {
	Owner   string `json:"owner"`
	Index   uint16 `json:"index"`
	Sold    string `json:"sold"`
	SoldFmt string `json:"sold_fmt,omitempty"`
}

type tradeView struct {
	Owner     string `json:"owner"`
	Index     uint16 `json:"index"`
	SellToken string `json:"sell_token"`
	BuyToken  string `json:"buy_token"`
	Sold      string `json:"sold"`
	Bought    string `json:"bought"`
}

type diagnosticView struct {
	Kind    string  `json:"kind"`
	Owner   string  `json:"owner,omitempty"`
	Index   *uint16 `json:"index,omitempty"`
	Token   *uint16 `json:"token,omitempty"`
	Record  *int    `json:"record,omitempty"`
	Message string  `json:"message"`
}

type solutionView struct {
	ID          string           `json:"id"`
	Numeraire   uint16           `json:"numeraire"`
	Hash        string           `json:"hash"`
	Iterations  int              `json:"iterations"`
	Prices      []priceView      `json:"prices"`
	Unpriced    []uint16         `json:"unpriced"`
	Fills       []fillView       `json:"fills"`
	Trades      []tradeView      `json:"trades,omitempty"`
	Diagnostics []diagnosticView `json:"diagnostics,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type summaryView struct {
	ID         string    `json:"id"`
	Numeraire  uint16    `json:"numeraire"`
	Hash       string    `json:"hash"`
	Iterations int       `json:"iterations"`
	Trades     int       `json:"trades"`
	Pruned     int       `json:"pruned"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) token(id encoding.TokenID) config.TokenConfig {
	if s.cfg.Tokens == nil {
		return (&config.Config{}).Token(uint16(id))
	}
	return s.cfg.Tokens.Token(uint16(id))
}

// newSolutionView 价格按升序、成交按 OrderID 升序，与规范编码顺序一致
func (s *Server) newSolutionView(row *solutionRow, sol *encoding.Solution, orders map[encoding.OrderID]encoding.TokenID) solutionView {
	v := solutionView{
		ID:         row.ID,
		Numeraire:  uint16(sol.Numeraire),
		Hash:       row.Hash,
		Iterations: row.Iterations,
		Prices:     []priceView{},
		Unpriced:   []uint16{},
		Fills:      []fillView{},
		CreatedAt:  row.CreatedAt,
	}
	for _, t := range sol.PricedTokens() {
		p, _ := sol.Price(t)
		v.Prices = append(v.Prices, priceView{Token: uint16(t), Symbol: s.token(t).Symbol, Price: p.String()})
	}
	for _, t := range sol.Unpriced {
		v.Unpriced = append(v.Unpriced, uint16(t))
	}
	for _, id := range sol.OrderIDs() {
		amt := sol.Fill(id)
		fv := fillView{Owner: id.Owner.Hex(), Index: id.Index, Sold: amt.String()}
		if sellToken, ok := orders[id]; ok {
			fv.SoldFmt = amt.Decimal(s.token(sellToken).Decimals).String()
		}
		v.Fills = append(v.Fills, fv)
	}
	return v
}

// withResult 附加成交与诊断。无法解析的订单记录在前，以 malformed_input 报告
func (s *Server) withResult(v solutionView, out *solver.Outcome) solutionView {
	for _, err := range out.RecordErrors {
		dv := diagnosticView{Kind: orderbook.KindMalformedInput.String(), Message: err.Error()}
		var re *encoding.RecordError
		if errors.As(err, &re) {
			idx := re.Index
			dv.Record = &idx
		}
		v.Diagnostics = append(v.Diagnostics, dv)
	}

	res := out.Result
	for _, tr := range res.Trades {
		v.Trades = append(v.Trades, tradeView{
			Owner:     tr.ID.Owner.Hex(),
			Index:     tr.ID.Index,
			SellToken: s.token(tr.SellToken).Symbol,
			BuyToken:  s.token(tr.BuyToken).Symbol,
			Sold:      tr.Sold.String(),
			Bought:    tr.Bought.String(),
		})
	}
	for _, d := range res.Diagnostics {
		dv := diagnosticView{Kind: d.Kind.String(), Message: d.Message}
		if d.HasOrder {
			idx := d.Order.Index
			dv.Owner = d.Order.Owner.Hex()
			dv.Index = &idx
		} else if d.Kind == orderbook.KindDisconnectedToken {
			tok := uint16(d.Token)
			dv.Token = &tok
		}
		v.Diagnostics = append(v.Diagnostics, dv)
	}
	return v
}

func newSummaryView(r solutionRow) summaryView {
	return summaryView{
		ID:         r.ID,
		Numeraire:  r.Numeraire,
		Hash:       r.Hash,
		Iterations: r.Iterations,
		Trades:     r.Trades,
		Pruned:     r.Pruned,
		CreatedAt:  r.CreatedAt,
	}
}
