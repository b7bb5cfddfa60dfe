package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/zapflow/zapflow/agent/contract"
	"github.com/zapflow/zapflow/agent/learning"
	"github.com/zapflow/zapflow/agent/llm"
	"github.com/zapflow/zapflow/agent/orchestrator"
	serverx "github.com/zapflow/zapflow/agent/server"
	"github.com/zapflow/zapflow/agent/store"
	"github.com/zapflow/zapflow/agent/suspend"
	configx "github.com/zapflow/zapflow/pkg/config"
	_ "github.com/zapflow/zapflow/pkg/logger/autoload"
	webhookx "github.com/zapflow/zapflow/pkg/webhook"
)

type AppConfig struct {
	AdminDSN      string `envconfig:"ADMIN_DSN" required:"true"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	adminDB := openAdminDB(*appCfg)
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("admin database unreachable")
	}

	llmCfg := configx.MustNew[llm.Config]("OPENAI")
	webhookCfg := configx.MustNew[webhookx.Config]("WEBHOOK")

	orch, err := orchestrator.New(orchestrator.Deps{
		Configs:   store.NewRegistry(adminDB),
		Binder:    store.NewBinder(adminDB),
		Learnings: learning.NewStore(adminDB),
		Completers: func(apiKey string) (contractx.Completer, error) {
			return llm.NewCompleter(*llmCfg, apiKey)
		},
		Alerts: webhookx.NewClient(*webhookCfg),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	srvCfg := configx.MustNew[serverx.Config]("SERVER")
	srv := &http.Server{
		Addr:         srvCfg.Addr,
		Handler:      serverx.New(orch, newSuspensionStore()).Handler(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srvCfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func openAdminDB(cfg AppConfig) *bun.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.AdminDSN)}
	if cfg.AdminPassword != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.AdminPassword))
	}
	return bun.NewDB(sql.OpenDB(pgdriver.NewConnector(opts...)), pgdialect.New())
}

// newSuspensionStore picks Upstash Redis when configured so suspensions
// survive process restarts; otherwise turns can only resume on this instance.
func newSuspensionStore() suspend.Store {
	redisCfg := configx.MustNew[suspend.UpstashRedisConfig]("UPSTASH_REDIS")
	if redisCfg.URL == "" {
		log.Warn().Msg("no redis configured, suspensions held in memory")
		return suspend.NewMemoryStore()
	}

	redisStore, err := suspend.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("suspension store init failed")
	}
	return redisStore
}
