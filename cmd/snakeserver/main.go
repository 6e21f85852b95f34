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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cawio/snake/internal/analytics"
	"github.com/cawio/snake/internal/config"
	"github.com/cawio/snake/internal/game"
	"github.com/cawio/snake/internal/logging"
	"github.com/cawio/snake/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configDir := flag.String("config", ".", "Directory containing snake.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorw("server stopped", "err", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	sessionID := uuid.NewString()

	gameOpts := []game.Option{game.WithLogger(log.Named("game"))}

	var (
		db       *analytics.DB
		recorder *analytics.Recorder
	)
	if cfg.Analytics.DBPath != "" {
		var err error
		db, err = analytics.OpenDB(cfg.Analytics.DBPath)
		if err != nil {
			return fmt.Errorf("opening analytics db: %w", err)
		}
		defer db.Close()
		recorder = analytics.NewRecorder(db, sessionID, log.Named("analytics"))
		gameOpts = append(gameOpts, game.WithEvents(recorder))
	}

	dispatch := server.NewDispatcher(log.Named("dispatch"))
	gameOpts = append(gameOpts, game.WithPublisher(dispatch))

	g := game.New(game.Config{
		GridSize:          cfg.Game.GridSize,
		TickInterval:      cfg.Game.TickInterval,
		ScoreIncrement:    cfg.Game.ScoreIncrement,
		ResumeOnReconnect: cfg.Game.ResumeOnReconnect,
		ReconnectGrace:    cfg.Game.ReconnectGrace,
	}, gameOpts...)

	hub := server.NewHub(g, dispatch, server.Limits{
		MaxConnsPerIP:     cfg.Server.MaxConnsPerIP,
		MaxTotalConns:     cfg.Server.MaxTotalConns,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
	}, log.Named("hub"))

	auth, err := server.NewAuth(cfg.Admin.Username, cfg.Admin.PasswordHash, cfg.Admin.JWTSecret)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go g.Run(ctx)

	mux := server.SetupRoutes(hub, server.NewSession(sessionID, g), auth, cfg.Server.ClientDir)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting",
			"addr", cfg.Server.Addr,
			"session", sessionID,
			"grid", cfg.Game.GridSize,
			"tick", cfg.Game.TickInterval,
			"resume", cfg.Game.ResumeOnReconnect,
			"admin", auth.Enabled(),
		)
		if cfg.Server.ClientDir != "" {
			log.Infow("serving client files", "dir", cfg.Server.ClientDir)
		}
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}

	if recorder != nil {
		recorder.Stop()
		logSummary(db, sessionID, log)
	}
	log.Infow("session over", "ticks", g.TickCount(), "players", g.PlayerCount())
	return nil
}

// logSummary writes what the journal recorded for this session
func logSummary(db *analytics.DB, sessionID string, log *zap.SugaredLogger) {
	counts, err := db.EventCounts(sessionID)
	if err != nil {
		log.Warnw("reading event counts", "err", err)
		return
	}
	top, err := db.TopScores(sessionID, 5)
	if err != nil {
		log.Warnw("reading top scores", "err", err)
		return
	}
	log.Infow("session summary", "session", sessionID, "events", counts)
	for i, s := range top {
		log.Infow("top score", "rank", i+1, "username", s.Username, "score", s.Score)
	}
}
