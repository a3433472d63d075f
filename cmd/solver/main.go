package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/config"
	"github.com/betbot/batchauction/pkg/logger"
	"github.com/betbot/batchauction/pkg/persistence"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()
	os.Exit(run())
}

// run 返回进程退出码；所有 defer（关闭存储等）在退出前执行
func run() int {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	batchFiles := flag.String("batch", "", "批次文件（YAML/JSON），逗号分隔可同时求解多个")
	recordsFile := flag.String("records", "", "规范编码的订单记录文件")
	numeraire := flag.Int("numeraire", -1, "记账单位代币（默认取配置 solver.numeraire）")
	outPath := flag.String("out", "", "把规范编码的解写到该文件（仅单个批次）")
	store := flag.Bool("store", false, "按配置保存解（json/badger）")
	asJSON := flag.Bool("json", false, "以 JSON 输出结果")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置无效: %v\n", err)
		return 1
	}
	if err := logger.Init(cfg.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}

	batches, err := loadBatches(cfg, *batchFiles, *recordsFile, *numeraire)
	if err != nil {
		logrus.Errorf("加载批次失败: %v", err)
		return 1
	}
	if len(batches) == 0 {
		fmt.Fprintln(os.Stderr, "需要 -batch 或 -records")
		flag.Usage()
		return 2
	}

	var st persistence.SolutionStore
	if *store {
		st, err = persistence.Open(cfg.Store.Kind, cfg.Store.Path)
		if err != nil {
			logrus.Errorf("打开存储失败: %v", err)
			return 1
		}
		defer func() {
			if err := st.Close(); err != nil {
				logrus.Warnf("关闭存储失败: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := solver.NewService(cfg.Solver, st)
	outs, errs := svc.SolveAll(ctx, batches)

	failed := 0
	for i, out := range outs {
		if errs[i] != nil {
			failed++
			logrus.Errorf("批次 %s 求解失败: %v", batches[i].ID, errs[i])
			continue
		}
		if *asJSON {
			printJSON(out)
		} else {
			fmt.Println(renderOutcome(cfg, out))
		}
	}

	if *outPath != "" {
		if err := writeSolution(*outPath, outs); err != nil {
			logrus.Errorf("%v", err)
			return 1
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}

// writeSolution 把唯一批次的规范编码写到 path
func writeSolution(path string, outs []*solver.Outcome) error {
	if len(outs) != 1 || outs[0] == nil {
		return fmt.Errorf("-out 只支持单个成功求解的批次")
	}
	data, err := encoding.EncodeSolution(outs[0].Result.Solution)
	if err != nil {
		return fmt.Errorf("编码解失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写出解失败: %w", err)
	}
	logrus.Infof("解已写入 %s (%d bytes)", path, len(data))
	return nil
}

func loadBatches(cfg *config.Config, batchFiles, recordsFile string, numeraire int) ([]*solver.Batch, error) {
	var out []*solver.Batch
	for _, p := range strings.Split(batchFiles, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := solver.LoadBatchFile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, b)
	}
	if strings.TrimSpace(recordsFile) != "" {
		n := cfg.Solver.Numeraire
		if numeraire >= 0 {
			if numeraire > 0xffff {
				return nil, fmt.Errorf("numeraire %d out of range", numeraire)
			}
			n = uint16(numeraire)
		}
		b, err := solver.LoadOrderRecords(recordsFile, encoding.TokenID(n))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

type outcomeJSON struct {
	Batch       string                   `json:"batch"`
	Hash        string                   `json:"hash"`
	Iterations  int                      `json:"iterations"`
	Prices      map[string]string        `json:"prices"`
	Unpriced    []encoding.TokenID       `json:"unpriced"`
	Fills       map[string]string        `json:"fills"`
	Diagnostics []string                 `json:"diagnostics"`
	Residual    []map[string]interface{} `json:"residual,omitempty"`
}

func printJSON(out *solver.Outcome) {
	sol := out.Result.Solution
	v := outcomeJSON{
		Batch:      out.BatchID,
		Hash:       out.Hash.Hex(),
		Iterations: out.Result.Iterations,
		Prices:     map[string]string{},
		Unpriced:   sol.Unpriced,
		Fills:      map[string]string{},
	}
	for t, p := range sol.Prices {
		v.Prices[fmt.Sprint(t)] = p.String()
	}
	for id, a := range sol.Fills {
		v.Fills[id.String()] = a.String()
	}
	for _, err := range out.RecordErrors {
		v.Diagnostics = append(v.Diagnostics, fmt.Sprintf("malformed_input: %v", err))
	}
	for _, d := range out.Result.Diagnostics {
		v.Diagnostics = append(v.Diagnostics, d.String())
	}
	for _, o := range out.Residual {
		v.Residual = append(v.Residual, map[string]interface{}{
			"order":       o.ID.String(),
			"sell_amount": o.SellAmount.String(),
			"buy_amount":  o.BuyAmount.String(),
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
