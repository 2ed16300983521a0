package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/campus-connect/internal/api"
	"github.com/npezzotti/campus-connect/internal/auth"
	"github.com/npezzotti/campus-connect/internal/cache"
	"github.com/npezzotti/campus-connect/internal/config"
	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/server"
	"github.com/npezzotti/campus-connect/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type flagValues struct {
	configPath       string
	addr             string
	dsn              string
	signingKey       string
	issuer           string
	audience         string
	allowedOrigins   []string
	redisAddr        string
	historyCacheSize int
	autoMigrate      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	fv := &flagValues{}

	cmd := &cobra.Command{
		Use:          "campus-connect",
		Short:        "Campus events, comments and real-time chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, fv)
		},
	}

	defaults := config.DefaultOptions()
	fs := cmd.PersistentFlags()
	fs.StringVarP(&fv.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&fv.addr, "addr", defaults.ServerAddr, "server address")
	fs.StringVar(&fv.dsn, "dsn", defaults.DatabaseDSN, "database connection string")
	fs.StringVar(&fv.signingKey, "signing-key", defaults.SigningKey, "base64 encoded token signing key")
	fs.StringVar(&fv.issuer, "issuer", defaults.Issuer, "token issuer")
	fs.StringVar(&fv.audience, "audience", defaults.Audience, "token audience")
	fs.StringSliceVar(&fv.allowedOrigins, "allowed-origins", defaults.AllowedOrigins, "comma-separated list of allowed origins for CORS")
	fs.StringVar(&fv.redisAddr, "redis-addr", defaults.RedisAddr, "redis address for the chat history cache, empty to disable")
	fs.IntVar(&fv.historyCacheSize, "history-cache-size", defaults.HistoryCacheSize, "number of recent chat messages kept in redis")
	fs.BoolVar(&fv.autoMigrate, "auto-migrate", defaults.AutoMigrate, "apply database migrations on startup")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, fv)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, fv)
		},
	})

	return cmd
}

// loadOptions layers defaults, the config file and flags set on the
// command line, in that order.
func loadOptions(fv *flagValues, changed func(string) bool) (config.Options, error) {
	opts := config.DefaultOptions()
	if fv.configPath != "" {
		var err error
		if opts, err = config.LoadFile(fv.configPath, opts); err != nil {
			return opts, err
		}
	}

	if changed("addr") {
		opts.ServerAddr = fv.addr
	}
	if changed("dsn") {
		opts.DatabaseDSN = fv.dsn
	}
	if changed("signing-key") {
		opts.SigningKey = fv.signingKey
	}
	if changed("issuer") {
		opts.Issuer = fv.issuer
	}
	if changed("audience") {
		opts.Audience = fv.audience
	}
	if changed("allowed-origins") {
		opts.AllowedOrigins = fv.allowedOrigins
	}
	if changed("redis-addr") {
		opts.RedisAddr = fv.redisAddr
	}
	if changed("history-cache-size") {
		opts.HistoryCacheSize = fv.historyCacheSize
	}
	if changed("auto-migrate") {
		opts.AutoMigrate = fv.autoMigrate
	}

	return opts, nil
}

func loadConfig(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	opts, err := loadOptions(fv, cmd.Flags().Changed)
	if err != nil {
		return nil, err
	}

	return config.NewConfig(opts)
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "[campus-connect] ", log.LstdFlags)
}

func runMigrate(cmd *cobra.Command, fv *flagValues) error {
	logger := newLogger()

	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	repo, err := database.NewPgCampusRepository(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(cmd.Context()); err != nil {
		return err
	}

	logger.Println("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, fv *flagValues) error {
	logger := newLogger()

	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := cmd.Context()

	repo, err := database.NewPgCampusRepository(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
	}

	var history server.HistoryCache
	if cfg.RedisAddr != "" && cfg.HistoryCacheSize > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Printf("connected to redis at %s", cfg.RedisAddr)

		history = cache.NewRedisHistoryCache(rdb, cfg.HistoryCacheSize)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	tokens := auth.NewTokenService(cfg.SigningKey, cfg.Issuer, cfg.Audience)

	hub := server.NewHub(logger, repo, history, statsUpdater, cfg.HistoryCacheSize)
	if err := hub.WarmHistory(ctx); err != nil {
		logger.Println("warm history:", err)
	}

	srv := api.NewCampusApp(mux, logger, hub, repo, tokens, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Println("server:", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	if err := hub.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	logger.Println("shutdown complete")
	return nil
}
