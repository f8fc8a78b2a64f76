package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/dex-aggregator-go/aggregator"
	"github.com/defistate/dex-aggregator-go/cmd/aggregator/config"
	"github.com/defistate/dex-aggregator-go/protocols/tokenregistry"
	"github.com/defistate/dex-aggregator-go/venues/onchain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type flags struct {
	configPath string
	mode       string
	tokenIn    string
	tokenOut   string
	amount     string
	pool       string
	fee        uint
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "Path to the configuration file.")
	flag.StringVar(&f.mode, "mode", "quote", "One of quote, estimate, estimate-in or resolve.")
	flag.StringVar(&f.tokenIn, "token-in", "", "Input token symbol or address.")
	flag.StringVar(&f.tokenOut, "token-out", "", "Output token symbol or address.")
	flag.StringVar(&f.amount, "amount", "1", "Amount in whole tokens: the input, or the wanted output in estimate-in mode.")
	flag.StringVar(&f.pool, "pool", "", "Pool address for the estimate modes.")
	flag.UintVar(&f.fee, "fee", 0, "V3 fee tier hint. Zero selects the configured default.")
	flag.Parse()
	return f
}

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	fail := func(msg string, args ...any) {
		rootLogger.Error(msg, args...)
		os.Exit(1)
	}

	f := parseFlags()
	log.Printf("Loading configuration from: %s", f.configPath)
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		fail("Failed to load configuration", "error", err)
	}
	tokens, err := tokenregistry.New(cfg.Tokens)
	if err != nil {
		fail("Failed to build token registry", "error", err)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		fail("Failed to dial rpc", "url", cfg.RPCURL, "error", err)
	}
	defer rpc.Close()

	backend, err := onchain.NewBackend(&onchain.Config{
		Caller:      rpc,
		Logger:      rootLogger.With("component", "onchain-backend"),
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		fail("Failed to initialize backend", "error", err)
	}

	agg, err := aggregator.New(&aggregator.Config{
		Owner:          cfg.Owner,
		WrappedNative:  cfg.WrappedNative,
		Fees:           cfg.Fees.Schedule(),
		V2Routers:      cfg.V2Routers,
		V3Routers:      cfg.V3Routers,
		SupportedPools: cfg.SupportedPools,
		DefaultFeeTier: cfg.DefaultFeeTier,
		Backend:        backend,
		Registry:       prometheus.DefaultRegisterer,
		Logger:         rootLogger.With("component", "aggregator"),
	})
	if err != nil {
		fail("Failed to initialize aggregator", "chain_id", cfg.ChainID, "error", err)
	}
	defer agg.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(rootLogger, cfg.MetricsAddr)
	}

	if f.fee == 0 {
		f.fee = uint(cfg.DefaultFeeTier)
	}
	if err := run(ctx, os.Stdout, agg, tokens, f); err != nil {
		fail("Command failed", "mode", f.mode, "error", err)
	}
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}

func run(ctx context.Context, w io.Writer, agg *aggregator.Aggregator, tokens *tokenregistry.Registry, f flags) error {
	in, err := tokens.Lookup(f.tokenIn)
	if err != nil {
		return err
	}
	out, err := tokens.Lookup(f.tokenOut)
	if err != nil {
		return err
	}

	switch f.mode {
	case "quote":
		amountIn, err := in.ParseAmount(f.amount)
		if err != nil {
			return err
		}
		best := agg.GetBestRate(ctx, in.Address, out.Address, amountIn, uint32(f.fee))
		if !best.Found() {
			fmt.Fprintf(w, "no venue quotes %s -> %s\n", in.Symbol, out.Symbol)
			return nil
		}
		fmt.Fprintf(w, "%s %s -> %s %s via %s router %s\n",
			in.FormatAmount(amountIn), in.Symbol, out.FormatAmount(best.AmountOut), out.Symbol, best.Version, best.Venue)
	case "estimate", "estimate-in":
		if !common.IsHexAddress(f.pool) {
			return fmt.Errorf("invalid pool address %q", f.pool)
		}
		pool := common.HexToAddress(f.pool)
		if f.mode == "estimate-in" {
			amountOut, err := out.ParseAmount(f.amount)
			if err != nil {
				return err
			}
			amountIn, err := agg.EstimateAmountIn(ctx, pool, in.Address, amountOut)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s <- %s %s\n", out.FormatAmount(amountOut), out.Symbol, in.FormatAmount(amountIn), in.Symbol)
			return nil
		}
		amountIn, err := in.ParseAmount(f.amount)
		if err != nil {
			return err
		}
		amountOut, err := agg.EstimateAmountOut(ctx, pool, in.Address, amountIn)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s -> %s %s\n", in.FormatAmount(amountIn), in.Symbol, out.FormatAmount(amountOut), out.Symbol)
	case "resolve":
		for _, router := range agg.SupportedV2Routers() {
			pool, err := agg.GetV2PoolFromRouter(ctx, router, in.Address, out.Address)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "v2 router %s: %s\n", router, pool)
		}
		for _, router := range agg.SupportedV3Routers() {
			pool, err := agg.GetV3PoolFromRouter(ctx, router, in.Address, out.Address, uint32(f.fee))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "v3 router %s fee %d: %s\n", router, f.fee, pool)
		}
	default:
		return fmt.Errorf("unknown mode %q", f.mode)
	}
	return nil
}
