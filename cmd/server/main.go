package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/refis/simulator/internal/api"
	"github.com/refis/simulator/internal/backup"
	"github.com/refis/simulator/internal/cache"
	"github.com/refis/simulator/internal/config"
	"github.com/refis/simulator/internal/ingestion"
	"github.com/refis/simulator/internal/repository"
	"github.com/refis/simulator/internal/rules"
	"github.com/refis/simulator/internal/sentryutil"
	"github.com/refis/simulator/internal/simulation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sentryutil.Init(cfg)
	defer sentryutil.Flush()

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	tables, err := rules.New(cfg.RuleOptions()...)
	if err != nil {
		log.Fatalf("Failed to build rule tables: %v", err)
	}

	// Create repositories.
	itemRepo := repository.NewItemRepo(db)
	groupRepo := repository.NewGroupRepo(db)
	importRepo := repository.NewImportRepo(db)

	// Result cache: Redis when configured, in-process otherwise.
	var resultCache cache.Cache
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, "refis:")
		cancel()
		if err != nil {
			log.Printf("WARNING: Redis unavailable, using in-memory cache: %v", err)
			resultCache = cache.NewMemoryCache()
		} else {
			log.Printf("Using Redis cache at %s", cfg.RedisAddr)
			defer rc.Close()
			resultCache = rc
		}
	} else {
		resultCache = cache.NewMemoryCache()
	}

	// Create services.
	simSvc := simulation.NewService(itemRepo, groupRepo, tables, resultCache, cfg.CacheTTL)
	ingestionSvc := ingestion.NewService(itemRepo, groupRepo, importRepo, tables)

	// Seed items if DB is empty.
	count, err := itemRepo.Count()
	if err != nil {
		log.Fatalf("Failed to count items: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding debts from testdata...")
		if err := seedDebts(ingestionSvc, cfg.SeedPath); err != nil {
			log.Printf("WARNING: Failed to seed debts: %v", err)
		}
	} else {
		log.Printf("Database already has %d items, skipping seed", count)
	}

	if cfg.BackupDir != "" {
		backups := backup.New(itemRepo, groupRepo, cfg.BackupDir, cfg.BackupKeep)
		if err := backups.Start(cfg.BackupSchedule); err != nil {
			log.Printf("WARNING: Backups disabled: %v", err)
		} else {
			defer backups.Stop()
		}
	}

	limiter := api.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitWindow)
	defer limiter.Stop()

	router := api.NewRouter(simSvc, ingestionSvc, limiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("REFIS Settlement Simulator (rules %s)", tables.Fingerprint()[:12])
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Printf("Server failed: %v", err)
		return
	case <-quit:
		log.Println("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	log.Println("Server exited")
}

func seedDebts(svc *ingestion.Service, path string) error {
	candidates := []string{path}

	// Also try relative to the executable.
	if exe, err := os.Executable(); err == nil && !filepath.IsAbs(path) {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, path),
			filepath.Join(dir, "..", "..", path),
		)
	}

	var data []byte
	var loadErr error
	for _, p := range candidates {
		data, loadErr = os.ReadFile(p)
		if loadErr == nil {
			log.Printf("Loaded debts from %s", p)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find %s in any candidate path: %w", path, loadErr)
	}

	res, err := svc.Ingest(data, "")
	if err != nil {
		return fmt.Errorf("ingest seed: %w", err)
	}

	log.Printf("Seeded %d items and %d groups", res.ItemsIngested, res.GroupsIngested)
	return nil
}
