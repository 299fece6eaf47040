package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"fundvault/config"
	"fundvault/core"
	"fundvault/core/state"
	"fundvault/native/pricefeed"
	"fundvault/observability/logging"
	"fundvault/rpc"
	"fundvault/storage"
)

const envVar = "FUNDVAULT_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("fundvaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	owner, err := cfg.Owner()
	if err != nil {
		logger.Error("invalid owner address", "err", err)
		os.Exit(1)
	}

	feed, err := buildFeed(cfg)
	if err != nil {
		logger.Error("failed to build price feed", "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(state.NewManager(db), feed, owner, logger)
	server := rpc.NewServer(node)

	logger.Info("starting fundvaultd",
		"rpc", cfg.RPCAddress,
		"owner", cfg.OwnerAddress,
		"feedMode", cfg.Feed.Mode,
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

func buildFeed(cfg *config.Config) (pricefeed.Feed, error) {
	switch cfg.Feed.Mode {
	case "http":
		return pricefeed.NewHTTPFeed(nil, cfg.Feed.Endpoint, cfg.Feed.Symbol, uint8(cfg.Feed.Decimals), cfg.Feed.MaxQuoteAge()), nil
	case "manual":
		price, err := manualPrice(cfg.Feed.ManualPrice, uint8(cfg.Feed.Decimals))
		if err != nil {
			return nil, err
		}
		return pricefeed.NewManualFeed(price, uint8(cfg.Feed.Decimals), 1), nil
	case "aggregate":
		if len(cfg.Feed.Endpoints) == 0 {
			return nil, fmt.Errorf("aggregate feed mode requires at least one endpoint")
		}
		feeds := make([]pricefeed.Feed, 0, len(cfg.Feed.Endpoints))
		for _, endpoint := range cfg.Feed.Endpoints {
			feeds = append(feeds, pricefeed.NewHTTPFeed(nil, endpoint, cfg.Feed.Symbol, uint8(cfg.Feed.Decimals), cfg.Feed.MaxQuoteAge()))
		}
		return pricefeed.NewAggregator(feeds...), nil
	default:
		return nil, fmt.Errorf("unknown feed mode %q", cfg.Feed.Mode)
	}
}

func manualPrice(decimal string, decimals uint8) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(strings.TrimSpace(decimal))
	if !ok || rat.Sign() <= 0 {
		return nil, fmt.Errorf("invalid manual price %q", decimal)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
