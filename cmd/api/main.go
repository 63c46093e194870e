package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loanvoice-platform/internal/audit"
	"loanvoice-platform/internal/auth"
	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/calls"
	"loanvoice-platform/internal/config"
	"loanvoice-platform/internal/conversations"
	"loanvoice-platform/internal/httpapi"
	"loanvoice-platform/internal/hub"
	"loanvoice-platform/internal/reporting"
	"loanvoice-platform/internal/telephony"
	"loanvoice-platform/pkg/logger"
	"loanvoice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// Transcript storage falls back to memory when no database is configured.
	var transcripts conversations.Store = conversations.NewMemoryStore()
	var db *sql.DB
	if cfg.HasPostgres() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		transcripts = conversations.NewPostgresStore(db)
	}

	h := hub.New(log)
	defer h.Close()
	h.PersistConversations(transcripts)

	var caps *httpapi.CallCaps
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		h.AttachRedis(rootCtx, rdb, hub.DefaultChannel)
		caps = httpapi.NewCallCaps(log, rdb, 1)
	}

	dispatcher := telephony.NewHTTPDispatcher(log, telephony.HTTPDispatcherConfig{
		BaseURL:   cfg.Dispatch.BaseURL,
		APIKey:    cfg.Dispatch.APIKey,
		APISecret: cfg.Dispatch.APISecret,
		AgentName: cfg.Dispatch.AgentName,
	}, func(status, message, phone, room string) {
		h.Broadcast("call_status", gin.H{
			"phone": phone, "status": status, "message": message, "room": room,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	reports := reporting.NewService(reporting.NewMemoryRepo())
	auditSvc := audit.NewService(audit.NewMemoryRepo())

	// Terminal statuses settle the attempt journal and free the borrower's
	// concurrency slot.
	h.OnCallStatus(func(ctx context.Context, phone, status, message, room string) {
		var final calls.Status
		switch {
		case status == "completed":
			final = calls.StatusCompleted
		case strings.HasPrefix(status, "failed"):
			final = calls.StatusFailed
		default:
			return
		}
		if err := reports.Record(ctx, phone, room, message, final); err != nil {
			log.Warn("attempt journal failed", "phone", phone, "err", err)
		}
		if caps != nil {
			caps.Release(ctx, phone)
		}
	})

	h.OnStartCampaign((&httpapi.CampaignRunner{
		Log:        log,
		Hub:        h,
		Dispatcher: dispatcher,
		Caps:       caps,
	}).Start)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, db, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Auth:        authManager,
		Hub:         h,
		Directory:   borrowers.NewDirectory(),
		Dispatcher:  dispatcher,
		Transcripts: transcripts,
		Reports:     reports,
		Audit:       auditSvc,
		Caps:        caps,
	})

	// Legacy raw-socket consumers.
	if cfg.App.RawSocketPort != 0 {
		ln, err := net.Listen("tcp", cfg.RawSocketAddr())
		if err != nil {
			log.Error("raw listener failed", "addr", cfg.RawSocketAddr(), "err", err)
			os.Exit(1)
		}
		go h.ServeRaw(rootCtx, ln)
		log.Info("raw socket listening", "addr", cfg.RawSocketAddr())
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
