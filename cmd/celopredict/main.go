package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/celopredict/config"
	"github.com/alejandrodnm/celopredict/internal/adapters/notify"
	"github.com/alejandrodnm/celopredict/internal/adapters/onchain"
	"github.com/alejandrodnm/celopredict/internal/application/gateway"
	"github.com/alejandrodnm/celopredict/internal/application/markets"
	"github.com/alejandrodnm/celopredict/internal/application/portfolio"
	"github.com/alejandrodnm/celopredict/internal/application/refresh"
	"github.com/alejandrodnm/celopredict/internal/application/session"
	"github.com/alejandrodnm/celopredict/internal/application/writes"
	"github.com/alejandrodnm/celopredict/internal/metrics"
	"github.com/alejandrodnm/celopredict/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "aggregate markets and portfolio once and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", true, "print full tables (false: one line per market)")
	var wf writeFlags
	wf.register()
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if !common.IsHexAddress(cfg.Ledger.Contract) {
		slog.Error("invalid contract address", "contract", cfg.Ledger.Contract)
		os.Exit(1)
	}
	contract := common.HexToAddress(cfg.Ledger.Contract)

	slog.Info("celopredict starting",
		"config", *configPath,
		"rpc", cfg.Chain.RPCURL,
		"chain_id", cfg.Chain.ChainID,
		"contract", contract.Hex(),
		"interval", cfg.PollInterval(),
		"once", *once,
		"can_sign", cfg.CanSign(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		slog.Error("failed to dial rpc", "err", err, "rpc", cfg.Chain.RPCURL)
		os.Exit(1)
	}
	defer client.Close()

	ledger := onchain.NewLedger(client, contract, cfg.Ledger.RatePerSecond)
	gw := gateway.New(ledger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// submitter queda como interfaz nil sin clave: el tracker lo trata como solo lectura.
	var submitter ports.WriteSubmitter
	var user *common.Address
	if cfg.CanSign() {
		w, err := onchain.NewWriter(client, contract, cfg.Chain.ChainID, cfg.Writes.PrivateKey)
		if err != nil {
			slog.Error("failed to load signer", "err", err)
			os.Exit(1)
		}
		submitter = w
		from := w.From()
		user = &from
	} else if cfg.Session.UserAddress != "" {
		if !common.IsHexAddress(cfg.Session.UserAddress) {
			slog.Error("invalid user address", "user", cfg.Session.UserAddress)
			os.Exit(1)
		}
		addr := common.HexToAddress(cfg.Session.UserAddress)
		user = &addr
	}

	identity := session.NewIdentity(user)
	poller := refresh.NewPoller(cfg.PollInterval())

	marketAgg := markets.New(ctx, gw, poller, markets.Config{ReadConcurrency: cfg.Ledger.ReadConcurrency}, m)
	portfolioAgg := portfolio.New(ctx, gw, identity, poller, m)
	defer portfolioAgg.Close()

	tracker := writes.New(ctx, submitter, gw, identity, marketAgg, portfolioAgg, writes.Config{
		ConfirmPoll:    cfg.ConfirmPoll(),
		ConfirmTimeout: cfg.ConfirmTimeout(),
	}, m)

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr, reg, func(ctx context.Context) error {
			_, err := gw.MarketCount(ctx)
			return err
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("metrics server listening", "addr", cfg.Metrics.Addr)
	}

	logOwnerStatus(ctx, tracker, identity)

	notifier := notify.NewConsole(*table)

	if wf.any() {
		if err := runWrite(ctx, tracker, wf); err != nil {
			slog.Error("write failed", "err", err)
			os.Exit(1)
		}
		if err := runOnce(ctx, marketAgg, portfolioAgg, notifier); err != nil {
			slog.Warn("refresh after write failed", "err", err)
		}
		return
	}

	if *once {
		if err := runOnce(ctx, marketAgg, portfolioAgg, notifier); err != nil {
			slog.Error("aggregation failed", "err", err)
			os.Exit(1)
		}
		return
	}

	runWatch(ctx, marketAgg, portfolioAgg, notifier)
	slog.Info("celopredict stopped cleanly")
}

// runOnce hace una pasada de cada agregador y la imprime.
func runOnce(ctx context.Context, mk *markets.Aggregator, pf *portfolio.Aggregator, notifier ports.Notifier) error {
	msnap, merr := mk.Refresh(ctx)
	if merr != nil {
		slog.Warn("markets aggregation incomplete", "err", merr)
	}
	if err := notifier.NotifyMarkets(ctx, msnap.Markets, time.Now()); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	psnap, perr := pf.Refresh(ctx)
	if perr != nil {
		slog.Warn("portfolio aggregation failed", "err", perr)
	} else if err := notifier.NotifyPortfolio(ctx, psnap.Portfolio); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if merr != nil {
		return merr
	}
	return perr
}

// runWatch suscribe el notificador a ambos agregadores hasta que ctx se cancele.
// Suscribirse engancha los agregadores al poller; al salir se desenganchan.
func runWatch(ctx context.Context, mk *markets.Aggregator, pf *portfolio.Aggregator, notifier ports.Notifier) {
	unsubMarkets := mk.Subscribe(func(s markets.Snapshot) {
		if err := notifier.NotifyMarkets(ctx, s.Markets, s.UpdatedAt); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	})
	defer unsubMarkets()

	unsubPortfolio := pf.Subscribe(func(s portfolio.Snapshot) {
		if s.Err != nil {
			return
		}
		if err := notifier.NotifyPortfolio(ctx, s.Portfolio); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	})
	defer unsubPortfolio()

	<-ctx.Done()
}

// logOwnerStatus informa si la identidad conectada es el owner del ledger.
func logOwnerStatus(ctx context.Context, tracker *writes.Tracker, identity *session.Identity) {
	user := identity.Current()
	if user == nil {
		slog.Info("no identity configured, portfolio disabled")
		return
	}
	isOwner, err := tracker.CheckIsOwner(ctx)
	if err != nil {
		slog.Warn("owner check failed", "user", user.Hex(), "err", err)
		return
	}
	slog.Info("identity", "user", user.Hex(), "owner", isOwner)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
