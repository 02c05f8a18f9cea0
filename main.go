package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"guildkeeper/internal/bot"
	"guildkeeper/internal/config"
	"guildkeeper/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(2)
	}
	setupLogging(cfg)
	log.Info().Msg("Hello from inside guildkeeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open the store")
	}
	defer s.Close()

	// Create bot
	guildkeeper, err := bot.CreateBot(cfg, s)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create discord bot")
	}

	// Run bot
	if err := guildkeeper.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Bot stopped")
		return
	}
	log.Info().Msg("Bye")
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("could not reach redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Msg(fmt.Sprintf("Using redis store at %s", cfg.RedisAddr))
		return store.NewRedis(rdb, cfg.KeyPrefix), nil
	default:
		log.Warn().Msg("Using the memory store, everything is lost on restart")
		return store.NewMemory(), nil
	}
}
