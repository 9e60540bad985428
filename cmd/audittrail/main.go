package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/claroledger/audittrail/internal/audit"
	"github.com/claroledger/audittrail/internal/config"
	"github.com/claroledger/audittrail/internal/handlers"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	// Database (optional; file store fallback for dev)
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		log.Println("connected to postgres")
	}

	var store audit.Store
	if db != nil {
		store = audit.NewPGStore(db)
	} else {
		store = audit.NewFileStore(cfg.ArchiveDir)
		log.Printf("no postgres configured; using file store at %s (dev only)", cfg.ArchiveDir)
	}

	svc := audit.NewService(store, audit.ServiceConfig{
		GracePeriod: cfg.GracePeriod,
	})

	// --- Mirror pipeline wiring (DB-first, Kafka + S3) ---
	var streamerCancel context.CancelFunc
	if db != nil {
		if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" && cfg.S3Bucket != "" {
			rawBrokers := strings.Split(cfg.KafkaBrokers, ",")
			brokers := make([]string, 0, len(rawBrokers))
			for _, b := range rawBrokers {
				b = strings.TrimSpace(b)
				if b != "" {
					brokers = append(brokers, b)
				}
			}

			producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{
				Brokers:     brokers,
				Topic:       cfg.KafkaTopic,
				MaxAttempts: 3,
			})
			if err != nil {
				log.Fatalf("failed to initialize kafka producer: %v", err)
			}
			log.Printf("kafka producer initialized (brokers=%v topic=%s)", brokers, cfg.KafkaTopic)

			archiver, err := audit.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				log.Fatalf("failed to initialize s3 archiver: %v", err)
			}
			log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)

			pgStore := store.(*audit.PGStore)
			streamer := audit.NewStreamer(pgStore, producer, archiver, audit.StreamerConfig{
				BatchSize:      cfg.StreamBatchSize,
				PollInterval:   cfg.StreamPollInterval,
				MaxConcurrency: cfg.StreamMaxConcurrency,
			})

			ctxStr, cancel := context.WithCancel(context.Background())
			streamerCancel = cancel
			go func() {
				if err := streamer.Run(ctxStr); err != nil && err != context.Canceled {
					log.Printf("[audit.streamer] exited with error: %v", err)
				}
			}()
			log.Printf("audit streamer started (batch=%d concurrency=%d poll=%s)",
				cfg.StreamBatchSize, cfg.StreamMaxConcurrency, cfg.StreamPollInterval)
		} else {
			log.Println("audit streamer not started: KAFKA_BROKERS, KAFKA_TOPIC, and S3_BUCKET must be set to enable")
		}
	} else {
		log.Println("no postgres configured; audit streamer disabled (requires durable DB)")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handlers.New(cfg, db, store, svc).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting audit-trail server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	// Cancel the streamer and give it a short grace period to drain; it
	// closes the producer on exit.
	if streamerCancel != nil {
		streamerCancel()
		time.Sleep(5 * time.Second)
	}

	if db != nil {
		_ = db.Close()
	}
	log.Println("server stopped")
}
