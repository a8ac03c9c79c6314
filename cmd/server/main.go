// Command server runs the KYC verification service: the session engine,
// the capture and decision HTTP surface, the retention sweeper, and the
// optional in-process decision worker. Every backend degrades to an
// in-memory implementation when its environment variable is unset, so a
// bare `go run ./cmd/server` yields a working single-node instance.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/blob"
	blobhandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/blob/handler"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/capture"
	capturehandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/capture/handler"
	capturemetrics "github.com/Malcan-Technologies/creditxpress-kyc/internal/capture/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/engine"
	decisionhandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/handler"
	decisionmetrics "github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/device"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/finalize"
	finalizehandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/finalize/handler"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/handoff"
	handoffhandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/handoff/handler"
	httpapi "github.com/Malcan-Technologies/creditxpress-kyc/internal/http"
	jwttoken "github.com/Malcan-Technologies/creditxpress-kyc/internal/jwt_token"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/pairing"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/config"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/httpserver"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/kafka"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/logger"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/metrics"
	platformredis "github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/redis"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/secrets"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/profile"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/retention"
	retentionmetrics "github.com/Malcan-Technologies/creditxpress-kyc/internal/retention/metrics"
	sessionmetrics "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/metrics"
	sessionservice "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/service"
	sessionstore "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/store"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/status"
	statushandler "github.com/Malcan-Technologies/creditxpress-kyc/internal/status/handler"
)

const (
	shutdownTimeout = 10 * time.Second

	jwtIssuer   = "creditxpress"
	jwtAudience = "kyc"

	auditTopicPartitions  = int32(3)
	auditTopicReplication = int16(1)
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// Session and audit persistence share one database.
	var (
		store      sessionstore.Store
		auditStore audit.Store
	)
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		sessions := sessionstore.NewPostgres(db)
		if err := sessions.Migrate(ctx); err != nil {
			return err
		}
		events := audit.NewPostgresStore(db)
		if err := events.Migrate(ctx); err != nil {
			return err
		}
		store, auditStore = sessions, events
	} else {
		log.Warn("DATABASE_URL not set, sessions and audit events are in-memory")
		store = sessionstore.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	auditOpts := []audit.PublisherOption{audit.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Topic, auditTopicPartitions, auditTopicReplication); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		auditOpts = append(auditOpts, audit.WithSink(audit.NewKafkaSink(producer, cfg.Kafka.Topic)))
		log.Info("audit events mirrored to kafka", "topic", cfg.Kafka.Topic)
	}
	trail := audit.NewPublisher(auditStore, auditOpts...)

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var credentials pairing.CredentialStore
	if redisClient != nil {
		defer redisClient.Close()
		credentials = pairing.NewRedisStore(redisClient.Client)
	} else {
		log.Warn("REDIS_URL not set, pairing tokens are in-memory")
		credentials = pairing.NewMemoryStore()
	}

	var blobs blob.Store
	switch cfg.Blob.Backend {
	case "s3":
		blobs, err = blob.NewS3Store(ctx, blob.S3Options{
			Bucket:   cfg.Blob.S3Bucket,
			Region:   cfg.Blob.S3Region,
			Endpoint: cfg.Blob.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("init s3 blob store: %w", err)
		}
	case "memory":
		log.Warn("artifact blobs are in-memory, signed URLs resolve under the service base URL")
		blobs = blob.NewMemoryStore(cfg.Server.BaseURL)
	default:
		return fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}

	var profiles finalize.ProfileStore
	if cfg.Database.ProfileURL != "" {
		attached, err := profile.NewPostgresStoreFromDSN(ctx, cfg.Database.ProfileURL)
		if err != nil {
			return fmt.Errorf("connect profile database: %w", err)
		}
		defer attached.Close()
		profiles = attached
	} else {
		log.Warn("PROFILE_DATABASE_URL not set, accepted profiles are in-memory")
		profiles = profile.NewMemoryStore()
	}

	engineKeyHash := cfg.Engine.KeyHash
	if engineKeyHash == "" {
		key, err := secrets.Generate()
		if err != nil {
			return fmt.Errorf("generate engine key: %w", err)
		}
		engineKeyHash, err = secrets.Hash(key)
		if err != nil {
			return fmt.Errorf("hash engine key: %w", err)
		}
		log.Warn("ENGINE_KEY_HASH not set, generated an engine key for this run",
			"engine_key", key)
	}

	pairingSvc := pairing.New(credentials, store,
		pairing.WithLogger(log),
		pairing.WithAuditPublisher(trail),
	)
	// One instance, shared with the status service so lazy expiry reads
	// land in the same counter as the sweeper's.
	sessionMetrics := sessionmetrics.New()
	sessions := sessionservice.New(store, pairingSvc,
		sessionservice.WithLogger(log),
		sessionservice.WithAuditPublisher(trail),
		sessionservice.WithMetrics(sessionMetrics),
		sessionservice.WithPairingTTL(cfg.Pairing.TokenTTL),
	)
	devices := device.NewService(true)
	authorizer := authz.New(store, pairingSvc)
	tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, jwtIssuer, jwtAudience)

	scorer := engine.New(engine.Config{
		OCRURL:       cfg.Engine.OCRURL,
		FaceMatchURL: cfg.Engine.FaceMatchURL,
		LivenessURL:  cfg.Engine.LivenessURL,
		Timeout:      cfg.Engine.RequestTimeout,
	})
	decisionSvc := decision.New(sessions, blobs, scorer,
		decision.WithLogger(log),
		decision.WithMetrics(decisionmetrics.New()),
		decision.WithSignedURLTTL(cfg.Blob.SignedURLTTL),
	)

	handoffSvc := handoff.New(sessions, pairingSvc, authorizer, devices, cfg.Server.BaseURL,
		handoff.WithLogger(log))
	captureSvc := capture.New(authorizer, sessions, store, blobs, devices,
		capture.WithLogger(log),
		capture.WithMetrics(capturemetrics.New()),
		capture.WithMaxUploadBytes(cfg.Capture.MaxUploadBytes),
	)
	statusSvc := status.New(authorizer, store,
		status.WithLogger(log),
		status.WithSessionMetrics(sessionMetrics),
	)
	finalizeSvc := finalize.New(authorizer, store, sessions, profiles, finalize.WithLogger(log))

	sweeper := retention.NewSweeper(sessions, store, blobs,
		retention.WithWindow(cfg.Retention.Window),
		retention.WithSweepInterval(cfg.Retention.SweepInterval),
		retention.WithAuditPublisher(trail),
		retention.WithMetrics(retentionmetrics.New()),
		retention.WithLogger(log),
	)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:        log,
		Metrics:       metrics.New(),
		JWT:           jwttoken.NewJWTServiceAdapter(tokens),
		EngineKeyHash: engineKeyHash,
		Handoff:       handoffhandler.New(handoffSvc, log),
		Capture:       capturehandler.New(captureSvc, log, cfg.Capture.MaxUploadBytes),
		Status:        statushandler.New(statusSvc, log),
		Finalize:      finalizehandler.New(finalizeSvc, log),
		Decision:      decisionhandler.New(decisionSvc, log),
		Artifacts:     blobhandler.New(blobs, log),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trail.Run(gctx)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if cfg.Engine.OCRURL != "" && cfg.Engine.FaceMatchURL != "" && cfg.Engine.LivenessURL != "" {
		worker := decision.NewWorker(decisionSvc, store,
			decision.WithPollInterval(cfg.Engine.WorkerInterval),
			decision.WithWorkerLogger(log),
		)
		g.Go(func() error {
			return worker.Run(gctx)
		})
	} else {
		log.Warn("verification engine URLs not configured, sessions progress only via the decision callback")
	}

	g.Go(func() error {
		log.Info("kyc service listening", "addr", cfg.Server.Addr, "base_url", cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
