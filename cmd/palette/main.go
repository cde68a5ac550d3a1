package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/layer-3/palette/adapters/chain"
	"github.com/layer-3/palette/adapters/events"
	"github.com/layer-3/palette/adapters/store"
	"github.com/layer-3/palette/adapters/tokenizer"
	"github.com/layer-3/palette/config"
	"github.com/layer-3/palette/internal/db"
	"github.com/layer-3/palette/internal/eth"
	"github.com/layer-3/palette/internal/keyfile"
	"github.com/layer-3/palette/internal/logging"
	"github.com/layer-3/palette/internal/metrics"
	"github.com/layer-3/palette/ports"
	"github.com/layer-3/palette/service"
	transport "github.com/layer-3/palette/transport/http"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("palette exited")
	}
}

// backends holds what run has to close on the way out.
type backends struct {
	identities ports.IdentityStore
	sessions   ports.SessionStore
	pool       *db.Pool
	redis      *redis.Client
}

func (b *backends) close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func (b *backends) health(ctx context.Context) error {
	if b.pool != nil {
		if err := b.pool.HealthCheck(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	sessionKey, ephemeral, err := tokenizer.LoadSigningKey(cfg.Session.SigningKeyFile)
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn().Msg("No session signing key configured, using an ephemeral key; sessions will not survive a restart")
	}

	eventPub, err := newEventPublisher(cfg, b, logger)
	if err != nil {
		return err
	}

	signer, err := newVoucherSigner(ctx, cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(sessionKey),
		b.identities,
		b.sessions,
		eventPub,
		service.WithSessionTTL(cfg.Session.TTL),
		service.WithChallengeWindow(cfg.Session.ChallengeWindow),
		service.WithAuthLogger(logging.Component(logger, "auth")),
		service.WithAuthMetrics(m),
	)

	voucherOpts := []service.VoucherOption{
		service.WithVoucherLogger(logging.Component(logger, "voucher")),
		service.WithVoucherMetrics(m),
	}
	if cfg.Voucher.MaxReward != "" {
		maxReward, err := decimal.NewFromString(cfg.Voucher.MaxReward)
		if err != nil {
			return fmt.Errorf("invalid voucher.max_reward: %w", err)
		}
		voucherOpts = append(voucherOpts, service.WithMaxReward(maxReward))
	}
	if cfg.Voucher.RequireSession {
		voucherOpts = append(voucherOpts, service.WithSessionCheck(authService))
	}
	if cfg.Chain.RPCURL != "" && cfg.Chain.PoolAddress != "" && cfg.Token.Address != "" {
		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to dial chain rpc: %w", err)
		}
		defer client.Close()

		reader := chain.NewPoolReader(client, common.HexToAddress(cfg.Token.Address), common.HexToAddress(cfg.Chain.PoolAddress))
		voucherOpts = append(voucherOpts, service.WithPoolReader(reader, cfg.Chain.BalanceTimeout))
	}
	voucherService := service.NewVoucherService(signer, eventPub, cfg.Token.Decimals, voucherOpts...)

	logger.Info().
		Str("voucher_signer", voucherService.SignerAddress().Hex()).
		Str("sessions", cfg.Store.Sessions).
		Str("identities", cfg.Store.Identities).
		Msg("Services ready")

	go pruneSessions(ctx, authService, cfg.Session.PruneInterval, logging.Component(logger, "janitor"))

	gin.SetMode(cfg.Server.Mode)
	router := transport.SetupRouter(transport.RouterConfig{
		Auth:     authService,
		Vouchers: voucherService,
		Metrics:  m,
		Logger:   logger,
		Health:   b.health,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	mem := store.NewMemoryStore()
	b.identities, b.sessions = mem, mem

	needsPostgres := cfg.Store.Identities == config.BackendPostgres || cfg.Store.Sessions == config.BackendPostgres
	needsRedis := cfg.Store.Sessions == config.BackendRedis || cfg.Events.Enabled

	if needsPostgres {
		dbLogger := logging.Component(logger, "db")
		pool, err := db.NewPool(ctx, &cfg.Database, dbLogger)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		if err := db.Migrate(ctx, pool.Pool, dbLogger); err != nil {
			b.close()
			return nil, err
		}

		pg := store.NewPostgresStore(pool.Pool)
		if cfg.Store.Identities == config.BackendPostgres {
			b.identities = pg
		}
		if cfg.Store.Sessions == config.BackendPostgres {
			b.sessions = pg
		}
	}

	if needsRedis {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		b.redis = redis.NewClient(opts)
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		if cfg.Store.Sessions == config.BackendRedis {
			b.sessions = store.NewRedisSessionStore(b.redis)
		}
	}

	if cfg.Store.Identities == config.BackendMemory {
		logger.Warn().Msg("Using in-memory identity store; players are forgotten on restart")
	}
	return b, nil
}

func newEventPublisher(cfg *config.Config, b *backends, logger zerolog.Logger) (ports.EventPublisher, error) {
	if !cfg.Events.Enabled {
		return events.NopPublisher{}, nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: b.redis,
		},
		logging.NewWatermillAdapter(logging.Component(logger, "events")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	return events.NewWatermillPublisher(publisher), nil
}

func newVoucherSigner(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*keyfile.Signer, error) {
	switch {
	case cfg.Voucher.SignerKeyFile != "":
		signer, err := keyfile.Load(cfg.Voucher.SignerKeyFile, logger)
		if err != nil {
			return nil, err
		}
		if err := signer.Watch(ctx); err != nil {
			return nil, err
		}
		return signer, nil
	case cfg.Voucher.SignerKey != "":
		key, err := eth.KeySignerFromHex(cfg.Voucher.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("invalid voucher.signer_key: %w", err)
		}
		logger.Warn().Msg("Voucher signer key read from config; use voucher.signer_key_file outside development")
		return keyfile.NewStatic(key), nil
	default:
		logger.Warn().Msg("No voucher signer configured; voucher requests will fail")
		return keyfile.NewStatic(nil), nil
	}
}

func pruneSessions(ctx context.Context, auth *service.AuthService, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.PruneSessions(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to prune sessions")
				continue
			}
			if n > 0 {
				logger.Info().Int64("pruned", n).Msg("Pruned expired sessions")
			}
		}
	}
}
