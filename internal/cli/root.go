// Package cli implements the shadowsight commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shadowsight/shadowsight/internal/auth"
	"github.com/shadowsight/shadowsight/internal/cache"
	"github.com/shadowsight/shadowsight/internal/config"
	"github.com/shadowsight/shadowsight/internal/database"
	"github.com/shadowsight/shadowsight/internal/docstore"
	"github.com/shadowsight/shadowsight/internal/localstore"
	"github.com/shadowsight/shadowsight/internal/notify"
	"github.com/shadowsight/shadowsight/internal/secrets"
	"github.com/shadowsight/shadowsight/internal/store"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "shadowsight",
	Short: "Interview integrity sessions and trust scores",
	Long:  "Serve the recruiter API and dashboard, migrate storage, and compute trust scores for interview sessions.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $SHADOWSIGHT_CONFIG)")
}

// loadConfig loads configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("SHADOWSIGHT_CONFIG", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// openStore connects to the configured backend and wraps it with the Redis
// cache when one is configured.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var st store.Store
	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = db
	case config.StoreFirestore:
		fs, err := docstore.New(ctx, cfg.GCPProject, docstore.Collections{
			Sessions:   cfg.SessionsCollection,
			Events:     cfg.EventsCollection,
			Recruiters: cfg.RecruitersCollection,
		})
		if err != nil {
			return nil, err
		}
		st = fs
	case config.StoreSQLite:
		ls, err := localstore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = ls
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	log.WithField("store", cfg.Store).Info("store connected")

	if cfg.RedisURL == "" {
		return st, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	log.WithField("ttl", cfg.CacheTTL).Info("redis cache enabled")
	return cache.New(st, redis.NewClient(opts), cfg.CacheTTL), nil
}

func openPublisher(ctx context.Context, cfg *config.Config) (notify.Publisher, error) {
	if cfg.PubSubTopic == "" {
		return notify.Nop{}, nil
	}
	p, err := notify.NewPubSub(ctx, cfg.GCPProject, cfg.PubSubTopic)
	if err != nil {
		return nil, err
	}
	log.WithField("topic", cfg.PubSubTopic).Info("publishing notifications")
	return p, nil
}

// newVerifier builds the token verifier for the configured auth mode. The
// HS256 secret may come from Secret Manager.
func newVerifier(ctx context.Context, cfg *config.Config) (*auth.Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthFirebase:
		return auth.NewFirebase(ctx, cfg.GCPProject, cfg.JWKSURL)
	case config.AuthHS256:
		secret := cfg.AuthSecret
		if secret == "" {
			loader, err := secrets.NewLoader(ctx, cfg.GCPProject)
			if err != nil {
				return nil, err
			}
			defer loader.Close()
			if secret, err = loader.Load(ctx, cfg.AuthSecretID); err != nil {
				return nil, err
			}
		}
		log.Warn("using shared-secret HS256 auth; do not use in production")
		return auth.NewHS256([]byte(secret), "", ""), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
