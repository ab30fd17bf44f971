package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"dca-console/internal/config"
	"dca-console/internal/dashboard"
	"dca-console/internal/gateway"
	"dca-console/internal/logging"
	"dca-console/internal/network"
	"dca-console/internal/strategy"
)

const defaultGatewayTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "optional config path for form defaults and gateway settings")
	template := flag.String("template", "", "apply a template (conservative, balanced, aggressive) before deriving")
	total := flag.String("total", "", "total input amount in the smallest unit")
	cycles := flag.String("cycles", "", "number of cycles")
	frequency := flag.String("frequency", "", "seconds between cycles")
	minOut := flag.String("min-out", "", "minimum output per cycle")
	maxOut := flag.String("max-out", "", "maximum output per cycle")
	limit := flag.String("limit", "", "per-cycle input limit, 0 derives it")
	inCoin := flag.String("in", "", "input coin type")
	outCoin := flag.String("out", "", "output coin type")
	signature := flag.String("signature", "", "price signature, required to derive a request")
	whitelist := flag.Bool("whitelist", false, "fetch and print the coin whitelist and exit")
	orders := flag.String("orders", "", "fetch and print the orders of this account and exit")
	net := flag.String("network", string(network.Mainnet), "network for gateway queries")
	flag.Parse()

	if _, err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}

	logCfg := config.LoggingConfig{Level: "warn"}
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
		logCfg = cfg.Log
	}
	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	if *whitelist || *orders != "" {
		if cfg == nil {
			fatal(errors.New("-config is required for gateway queries"))
		}
		runQuery(log, cfg, network.Parse(*net), *whitelist, *orders)
		return
	}

	f := strategy.DefaultFields()
	if cfg != nil {
		applyForm(&f, cfg.Form)
	}
	if *template != "" {
		tpl, err := strategy.TemplateByID(*template)
		if err != nil {
			fatal(err)
		}
		tpl.Apply(&f)
	}
	set(&f.TotalInAmount, *total)
	set(&f.CycleCount, *cycles)
	set(&f.CycleFrequency, *frequency)
	set(&f.PerCycleMinOutAmount, *minOut)
	set(&f.PerCycleMaxOutAmount, *maxOut)
	set(&f.PerCycleInAmountLimit, *limit)
	set(&f.InCoinType, *inCoin)
	set(&f.OutCoinType, *outCoin)
	set(&f.Signature, *signature)

	fmt.Printf("per-cycle hint: %s (total=%s cycles=%s)\n", strategy.PerCycleHint(f.TotalInAmount, f.CycleCount), f.TotalInAmount, f.CycleCount)
	chart, err := dashboard.Chart(f.TotalInAmount, f.CycleCount, f.PerCycleMinOutAmount, f.PerCycleMaxOutAmount)
	if err != nil {
		fmt.Printf("estimate: %v\n", err)
	} else {
		p := chart.Points[0]
		fmt.Printf("estimate: points=%d min_price=%g max_price=%g avg_price=%g\n", len(chart.Points), p.MinPrice, p.MaxPrice, p.AvgPrice)
		fmt.Printf("chart line: %s\n", chart.Line)
	}

	req, err := strategy.BuildOpenOrderRequest(f, time.Now())
	if err != nil {
		fmt.Printf("request: %v\n", err)
		os.Exit(2)
	}
	printJSON(req)
}

func runQuery(log *zap.Logger, cfg *config.Config, net network.Type, whitelist bool, account string) {
	if !net.Supported() {
		fatal(errors.New(network.UnsupportedMessage))
	}
	baseURL := cfg.Gateway.URLFor(string(net.Env()))
	if baseURL == "" {
		fatal(fmt.Errorf("no gateway url configured for %s", net))
	}
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	client := gateway.New(baseURL, cfg.Gateway.APIKey(), timeout, log)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if whitelist {
		list, err := client.CoinWhitelist(ctx, cfg.Gateway.WhitelistRetries)
		if err != nil {
			fatal(err)
		}
		printJSON(list)
		return
	}
	addr, err := network.NormalizeAddress(account)
	if err != nil {
		fatal(err)
	}
	list, err := client.Orders(ctx, addr)
	if errors.Is(err, gateway.ErrNoOrders) {
		fmt.Println("no orders")
		return
	}
	if err != nil {
		fatal(err)
	}
	for _, o := range list {
		fmt.Printf("%s status=%s %s -> %s in=%s out=%s\n", network.ShortenID(o.ID), o.Status, network.ShortenType(o.InCoinType), network.ShortenType(o.OutCoinType), o.InBalance, o.OutBalance)
	}
}

func applyForm(f *strategy.Fields, cfg config.FormConfig) {
	set(&f.Name, cfg.Name)
	set(&f.InCoinType, cfg.InCoinType)
	set(&f.TotalInAmount, cfg.TotalInAmount)
	set(&f.CycleCount, cfg.CycleCount)
	set(&f.CycleFrequency, cfg.CycleFrequency)
}

func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "preview: %v\n", dashboard.FormatError(err))
	os.Exit(1)
}
