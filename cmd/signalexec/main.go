// signalexec - executes buy/sell signals from a streaming source on Binance spot
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/configs"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/executor"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/ledger"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/ledger/storage"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/logger"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/metrics"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/risk"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/stream"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/supervisor"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading/binance"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/trading/paper"
)

const (
	exitStartup  = 1
	exitTerminal = 3
)

var (
	version    = "0.1.0"
	configPath string
)

// exitError carries the process exit code out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	rootCmd := &cobra.Command{
		Use:           "signalexec",
		Short:         "Execute streamed trading signals on Binance spot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExecutor,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configs.DefaultFile, "Path to the yaml config file")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(exitStartup)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("signalexec version %s\n", version)
		},
	}
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the tracked positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := ledger.Open(ctx, store)
			if err != nil {
				return err
			}
			positions := book.Snapshot()
			for _, symbol := range book.Symbols() {
				fmt.Printf("%-16s %s\n", symbol, positions[symbol])
			}
			return nil
		},
	}
}

func openStore(ctx context.Context, cfg *configs.Config) (ledger.Store, error) {
	target := cfg.Ledger.Path
	if cfg.Ledger.Backend == storage.BackendPostgres {
		target = cfg.Ledger.DSN
	}
	return storage.Open(ctx, cfg.Ledger.Backend, target)
}

func newExchange(cfg *configs.Config) trading.Exchange {
	if cfg.DryRun {
		return paper.NewExchange()
	}
	return binance.NewExchange(cfg.APIKey, cfg.APISecret, cfg.Exchange.Testnet)
}

func runExecutor(cmd *cobra.Command, args []string) error {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Configured symbols", zap.Strings("symbols", cfg.Symbols), zap.Bool("dry_run", cfg.DryRun))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("Failed to open ledger store", zap.Error(err))
		return err
	}
	defer store.Close()

	book, err := ledger.Open(ctx, store)
	if err != nil {
		log.Error("Failed to load positions", zap.Error(err))
		return err
	}
	for symbol, qty := range book.Snapshot() {
		log.Info("Loaded position", zap.String("symbol", symbol), zap.String("qty", qty.String()))
	}

	var opts []trading.Option
	if cfg.Exchange.RateLimit > 0 {
		opts = append(opts, trading.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Exchange.RateLimit), cfg.Exchange.Burst)))
	}
	gateway := trading.NewRetrying(newExchange(cfg), log, opts...)

	if !gateway.Ping(ctx) {
		log.Warn("Exchange is not reachable yet, continuing")
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, log)
		if err != nil {
			log.Error("Failed to start metrics server", zap.Error(err))
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("Metrics listening", zap.String("addr", srv.Addr))
	}

	sellMode, err := executor.ParseSellMode(cfg.Sell.Mode)
	if err != nil {
		return err
	}
	exec := executor.New(gateway, book, risk.NewFileFlags(cfg.Gates.StopFile, cfg.Gates.TopUpFile), executor.Options{
		QuoteCost:        cfg.QtyUSDT,
		SellMode:         sellMode,
		CheckMinNotional: cfg.Sell.CheckMinNotional,
	}, log)

	client := stream.New(stream.Config{
		URL:                cfg.StreamURL(),
		Token:              cfg.Login,
		InsecureSkipVerify: cfg.Stream.InsecureSkipVerify,
		Symbols:            cfg.Symbols,
		ReadTimeout:        cfg.Stream.ReadTimeout,
	}, exec, log)

	err = supervisor.New(client, log).Run(ctx)
	if flushErr := exec.Flush(context.Background()); flushErr != nil {
		log.Error("Failed to persist positions", zap.Error(flushErr))
	}

	switch {
	case errors.Is(err, supervisor.ErrTerminal):
		return &exitError{code: exitTerminal, err: err}
	case errors.Is(err, context.Canceled):
		log.Info("Interrupted, shutting down")
		return nil
	default:
		return err
	}
}
