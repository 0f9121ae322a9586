package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shadowsight/shadowsight/internal/api"
	"github.com/shadowsight/shadowsight/internal/scheduler"
	"github.com/shadowsight/shadowsight/internal/session"
	"github.com/shadowsight/shadowsight/internal/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API, dashboard and rescore scheduler",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	log.Info("shadowsight starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	if err := st.Health(ctx); err != nil {
		exitErr("store health check", err)
	}

	pub, err := openPublisher(ctx, cfg)
	if err != nil {
		exitErr("open publisher", err)
	}
	defer pub.Close()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		exitErr("set up auth", err)
	}

	svc, err := session.NewService(st, pub, session.WithWeights(cfg.ScoreWeights()))
	if err != nil {
		exitErr("create service", err)
	}

	// Start scheduler in background
	sched := scheduler.New(st, svc, cfg.RescoreWorkers, cfg.RescoreBatch, cfg.RescoreInterval)
	go func() {
		if err := sched.Start(ctx); err != nil {
			log.WithError(err).Error("scheduler stopped")
		}
	}()

	webHandler, err := web.New(svc, verifier)
	if err != nil {
		exitErr("load templates", err)
	}

	// Setup router
	r := chi.NewRouter()
	r.Mount("/api/v1", api.New(svc, verifier, st.Health).Router())
	r.Mount("/", webHandler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutdown signal received, stopping")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithFields(log.Fields{
		"addr":             cfg.HTTPAddr,
		"store":            cfg.Store,
		"auth":             cfg.AuthMode,
		"rescore_interval": cfg.RescoreInterval,
		"rescore_workers":  cfg.RescoreWorkers,
	}).Info("shadowsight listening")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Error("server error")
		return
	}

	log.Info("shadowsight stopped")
}
