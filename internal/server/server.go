package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/backfill"
	"github.com/jonguttman/MasterStat/internal/config"
	"github.com/jonguttman/MasterStat/internal/model"
	"github.com/jonguttman/MasterStat/internal/poller"
	"github.com/jonguttman/MasterStat/internal/smartthings"
	"github.com/jonguttman/MasterStat/internal/store"
)

// rescanInterval is how often the history log is re-checked for gaps that
// opened while running (network outages survive the process).
const rescanInterval = time.Hour

// Server owns the full acquisition pipeline: SmartThings client, sample
// store, backfill, poller, and the HTTP read surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	client *smartthings.Client
	tokens smartthings.TokenSource
	store  *store.Store
	cache  *poller.Cache
	poller *poller.Poller
	hub    *Hub

	httpSrv *http.Server
	ready   atomic.Bool
	cancel  context.CancelFunc
}

// New wires the server from configuration. No I/O happens here; Start runs
// the startup sequence.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	var tokens smartthings.TokenSource
	switch {
	case cfg.API.Token != "":
		tokens = smartthings.StaticToken(cfg.API.Token)
	case cfg.API.CredentialsFile != "":
		cliTokens, err := smartthings.NewCLITokens(cfg.API.CredentialsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		tokens = cliTokens
	default:
		return nil, errors.New("no credential source configured")
	}

	client := smartthings.NewClient(cfg.API.BaseURL, cfg.API.Timeout, tokens,
		cfg.Devices.ThermostatID, cfg.Devices.OutletID, logger)

	return &Server{
		cfg:    cfg,
		logger: logger,
		client: client,
		tokens: tokens,
		cache:  poller.NewCache(client, cfg.Poll.CacheTTL),
	}, nil
}

// Start runs the startup sequence and begins serving. It blocks until the
// listener fails or Stop is called: validate credentials, open the store,
// backfill gaps from event history, then start the poller and HTTP server.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("validating credentials")
	if err := s.client.Validate(ctx); err != nil {
		return fmt.Errorf("credential validation failed: %w", err)
	}

	st, err := store.Open(s.cfg.History.DataDir, s.cfg.History.Retention, s.logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	s.store = st

	// Reconstruct history the process missed while down, before any live
	// sample lands.
	if err := s.backfillPass(ctx, s.cfg.Backfill.StartupMinGap); err != nil {
		s.logger.Warn("startup backfill incomplete", zap.Error(err))
	}

	s.hub = NewHub(ctx, s.logger)
	go s.hub.Run()

	s.poller = poller.New(s.client, s.store, s.cfg.Poll.Interval, s.logger)
	s.poller.FeedCache(s.cache)
	s.poller.OnSample(func(sample model.Sample) {
		s.hub.BroadcastSample(sample)
	})
	go s.poller.Run(ctx)
	go s.rescanLoop(ctx)

	router := mux.NewRouter()
	SetupRoutes(router, NewHandler(s.cache, s.store, s.hub, &s.ready))

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.ready.Store(true)
	s.logger.Info("server listening",
		zap.Int("port", s.cfg.Server.Port),
		zap.Int("history_points", s.store.Len()))

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.ready.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	if s.hub != nil {
		s.hub.Stop()
	}
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if closer, ok := s.tokens.(interface{ Close() error }); ok {
		closer.Close()
	}
	return err
}

// backfillPass detects gaps above minGap in the history log and fills them
// from device event history. Recovered samples are merged and the log
// rewritten in order.
func (s *Server) backfillPass(ctx context.Context, minGap time.Duration) error {
	gaps, err := backfill.DetectGaps(s.store.Log(), minGap, time.Now())
	if err != nil {
		return fmt.Errorf("gap scan: %w", err)
	}
	if len(gaps) == 0 {
		return nil
	}

	rec := backfill.NewReconstructor(s.client, s.cfg.Devices.ThermostatID, s.logger)
	rec.Window = s.cfg.Backfill.Window
	rec.MaxGapAge = s.cfg.Backfill.MaxGapAge

	samples, report := rec.Run(ctx, gaps)
	if len(samples) > 0 {
		s.store.MergeBackfill(samples)
	}
	s.logger.Info("backfill pass complete",
		zap.String("run_id", report.RunID),
		zap.Int("gaps_found", report.GapsFound),
		zap.Int("gaps_skipped", report.GapsSkipped),
		zap.Int("gaps_filled", report.GapsFilled),
		zap.Int("points_recovered", report.PointsRecovered))
	return nil
}

// rescanLoop periodically re-checks for gaps that opened while running.
// The rescan threshold is wider than the startup one so ordinary poll
// jitter never triggers reconstruction.
func (s *Server) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.backfillPass(ctx, s.cfg.Backfill.RescanMinGap); err != nil {
				s.logger.Warn("rescan backfill incomplete", zap.Error(err))
			}
		}
	}
}
