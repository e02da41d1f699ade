package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/access"
	"github.com/fedid/guestsync/pkg/authority"
	"github.com/fedid/guestsync/pkg/config"
	"github.com/fedid/guestsync/pkg/httputil"
	"github.com/fedid/guestsync/pkg/invitations"
	"github.com/fedid/guestsync/pkg/mail"
	"github.com/fedid/guestsync/pkg/observability"
	"github.com/fedid/guestsync/pkg/provisioning"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.WithField("service", "guestsync")
	appLogger := observability.NewLogger(cfg.LogLevel, os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	var sender mail.Sender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP, log)
	} else {
		log.Warn("No SMTP host configured; notifications are recorded in memory only")
		sender = mail.NewRecordingSender()
	}

	directory := access.NewPostgresService(db)
	failureStore := provisioning.NewPostgresFailureStore(db)
	invitationStore := invitations.NewPostgresStore(db)

	checker, err := authority.NewPostgresChecker(db, cfg.Provisioning.AuthorityCacheSize)
	if err != nil {
		log.Fatalf("Failed to create authority checker: %v", err)
	}

	channel := provisioning.NewChannel(failureStore, sender, cfg.Provisioning.OperatorAddress, log)
	synchronizer := provisioning.NewSynchronizer(directory, channel, cfg.Provisioning.URNPrefix, log)
	invitationService := invitations.NewService(invitationStore, directory, synchronizer, sender, cfg.Server.BaseURL, log)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	}).Methods("GET")

	invitationHandlers := invitations.NewHandlers(invitationService, invitationStore, checker)
	invitationHandlers.RegisterPublicRoutes(router)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(authority.Middleware(checker)))
	provisioning.NewFailureHandlers(failureStore, synchronizer, checker, log).RegisterRoutes(api)
	invitationHandlers.RegisterRoutes(api)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(appLogger),
		httputil.RecoveryMiddleware(appLogger),
	)(router)

	scheduler := cron.New()
	if cfg.Provisioning.DigestSchedule != "" {
		digest := provisioning.NewFailureDigest(failureStore, sender, cfg.Provisioning.OperatorAddress, log)
		_, err := scheduler.AddFunc(cfg.Provisioning.DigestSchedule, func() {
			defer observability.RecoverPanic(appLogger, "failure digest")
			if err := digest.Run(context.Background()); err != nil {
				log.WithError(err).Error("failure digest run failed")
			}
		})
		if err != nil {
			log.Fatalf("Invalid digest schedule %q: %v", cfg.Provisioning.DigestSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("Starting guestsync server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
