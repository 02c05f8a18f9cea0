// Package config loads the bot configuration.
//
// Values come, by increasing priority, from the defaults, an optional YAML
// file given with --config, GUILDKEEPER_* environment variables (dots become
// underscores, GUILDKEEPER_STORE_BACKEND for store.backend) and flags.
// Restrictions given as a single string may be separated by commas or
// spaces, as in GUILDKEEPER_ANNOUNCE_RESTRICTIONS="5/5s,50/10m".
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/common"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GUILDKEEPER"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type StoreConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

type Config struct {
	Token          string
	Prefix         string
	Store          StoreConfig
	SweepInterval  time.Duration
	ApplicationTTL time.Duration
	DMRestrictions []common.Restriction
	LogLevel       string
	LogPretty      bool
}

func defaults(v *viper.Viper) {
	v.SetDefault("bot.prefix", "!")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.key_prefix", "guildkeeper:")
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("circle.application_ttl", 72*time.Hour)
	v.SetDefault("announce.restrictions", []string{"5/5s", "50/10m"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load parses the command line arguments (without the program name)
func Load(args []string) (Config, error) {

	v := viper.New()
	defaults(v)

	flags := pflag.NewFlagSet("guildkeeper", pflag.ContinueOnError)
	configFile := flags.String("config", "", "YAML configuration file")
	flags.String("token", "", "Discord bot token")
	flags.String("prefix", "", "command prefix")
	flags.String("store", "", "store backend (memory or redis)")
	flags.String("redis-addr", "", "address of the redis server")
	flags.Duration("sweep-interval", 0, "time between two expiry sweeps")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable logs")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	for key, flag := range map[string]string{
		"bot.token":        "token",
		"bot.prefix":       "prefix",
		"store.backend":    "store",
		"store.redis.addr": "redis-addr",
		"sweep.interval":   "sweep-interval",
		"log.level":        "log-level",
		"log.pretty":       "log-pretty",
	} {
		// Only flags set explicitly override the other sources
		if flags.Changed(flag) {
			if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
				return Config{}, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", *configFile, err)
		}
	}

	c := Config{
		Token:  v.GetString("bot.token"),
		Prefix: v.GetString("bot.prefix"),
		Store: StoreConfig{
			Backend:       v.GetString("store.backend"),
			RedisAddr:     v.GetString("store.redis.addr"),
			RedisPassword: v.GetString("store.redis.password"),
			RedisDB:       v.GetInt("store.redis.db"),
			KeyPrefix:     v.GetString("store.key_prefix"),
		},
		SweepInterval:  v.GetDuration("sweep.interval"),
		ApplicationTTL: v.GetDuration("circle.application_ttl"),
		LogLevel:       v.GetString("log.level"),
		LogPretty:      v.GetBool("log.pretty"),
	}

	for _, item := range v.GetStringSlice("announce.restrictions") {
		for _, text := range strings.Split(item, ",") {
			if strings.TrimSpace(text) == "" {
				continue
			}
			restriction, err := common.ParseRestriction(text)
			if err != nil {
				return Config{}, err
			}
			c.DMRestrictions = append(c.DMRestrictions, restriction)
		}
	}

	return c, c.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("a Discord token is required (bot.token, GUILDKEEPER_BOT_TOKEN or --token)"))
	}
	if strings.TrimSpace(c.Prefix) == "" {
		errs = append(errs, errors.New("the command prefix cannot be empty"))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("the redis store needs store.redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	return errors.Join(errs...)
}
