package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/batchauction/internal/orderbook"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/config"
)

// 样式定义
var (
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().Bold(true)
	// 成交（绿色）
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	// 诊断（黄色）
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// renderRows 等宽列，第一行为表头
func renderRows(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	for n, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		line := strings.Join(cells, "  ")
		if n == 0 {
			line = headerStyle.Render(line)
		}
		b.WriteString(line)
		if n < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func symbol(cfg *config.Config, id uint16) string {
	return cfg.Token(id).Symbol
}

// renderOutcome 价格、成交与诊断三个面板
func renderOutcome(cfg *config.Config, out *solver.Outcome) string {
	res := out.Result
	sol := res.Solution

	prices := [][]string{{"TOKEN", "PRICE"}}
	for _, t := range sol.PricedTokens() {
		p, _ := sol.Price(t)
		prices = append(prices, []string{symbol(cfg, uint16(t)), p.String()})
	}
	for _, t := range sol.Unpriced {
		prices = append(prices, []string{symbol(cfg, uint16(t)), "-"})
	}

	trades := [][]string{{"ORDER", "SELL", "SOLD", "BUY", "BOUGHT"}}
	for _, tr := range res.Trades {
		sell, buy := cfg.Token(uint16(tr.SellToken)), cfg.Token(uint16(tr.BuyToken))
		trades = append(trades, []string{
			tr.ID.String(),
			sell.Symbol, tr.Sold.Decimal(sell.Decimals).String(),
			buy.Symbol, tr.Bought.Decimal(buy.Decimals).String(),
		})
	}

	sections := []string{
		titleStyle.Render(fmt.Sprintf("批次 %s", out.BatchID)),
		fmt.Sprintf("迭代: %d  成交: %d  剔除: %d  耗时: %s", res.Iterations, len(res.Trades), res.Pruned(), out.Elapsed),
		fmt.Sprintf("哈希: %s", out.Hash.Hex()),
		"",
		renderRows(prices),
		"",
	}
	if len(res.Trades) > 0 {
		sections = append(sections, successStyle.Render(renderRows(trades)))
	} else {
		sections = append(sections, "无成交")
	}

	var diags []string
	for _, d := range res.Diagnostics {
		diags = append(diags, d.String())
	}
	for _, err := range out.RecordErrors {
		diags = append(diags, fmt.Sprintf("%s: %v", orderbook.KindMalformedInput, err))
	}
	if len(diags) > 0 {
		sections = append(sections, "", warningStyle.Render(strings.Join(diags, "\n")))
	}
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
