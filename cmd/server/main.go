package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"besiktning-sync-server/internal/config"
	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/handler"
	"besiktning-sync-server/internal/middleware"
	"besiktning-sync-server/internal/repository"
	"besiktning-sync-server/internal/service"

	"github.com/gorilla/mux"
)

// entityRoutes maps each syncable type to its REST path segment.
var entityRoutes = map[domain.EntityType]string{
	domain.EntityTypeProperty:    "properties",
	domain.EntityTypeInspection:  "inspections",
	domain.EntityTypeApartment:   "apartments",
	domain.EntityTypeDefect:      "defects",
	domain.EntityTypeMeasurement: "measurements",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := repository.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	entityRepo := repository.NewEntityRepository()
	changeLogRepo := repository.NewChangeLogRepository()
	syncLogRepo := repository.NewSyncLogRepository()

	registry := service.NewRegistry(entityRepo)

	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	entityService := service.NewEntityService(db, registry, entityRepo, changeLogRepo)
	syncService := service.NewSyncService(db, registry, entityRepo, changeLogRepo, syncLogRepo, service.SyncOptions{
		MaxOpsPerPush:    cfg.Sync.MaxOpsPerPush,
		DefaultPullLimit: cfg.Sync.DefaultPullLimit,
		MaxPullLimit:     cfg.Sync.MaxPullLimit,
		IdempotencyTTL:   cfg.Sync.IdempotencyTTL,
		MinClientVersion: cfg.Sync.MinClientVersion,
	})

	authHandler := handler.NewAuthHandler(authService)
	syncHandler := handler.NewSyncHandler(syncService)

	r := mux.NewRouter()

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	public := api.PathPrefix("/auth").Subrouter()
	public.Use(middleware.LoggerMiddleware())
	public.HandleFunc("/register", authHandler.Register).Methods("POST", "OPTIONS")
	public.HandleFunc("/login", authHandler.Login).Methods("POST", "OPTIONS")
	public.HandleFunc("/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")
	public.HandleFunc("/logout", authHandler.Logout).Methods("POST", "OPTIONS")

	// Auth runs before the logger so request lines carry the user id.
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	protected.Use(middleware.LoggerMiddleware())

	protected.HandleFunc("/users/me", authHandler.Me).Methods("GET", "OPTIONS")

	protected.HandleFunc("/sync/push", syncHandler.Push).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sync/pull", syncHandler.Pull).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/handshake", syncHandler.Handshake).Methods("GET", "OPTIONS")

	for _, t := range domain.EntityTypes {
		eh := handler.NewEntityHandler(entityService, t)
		eh.RegisterRoutes(protected.PathPrefix("/" + entityRoutes[t]).Subrouter())
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting Besiktning Sync Server on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Database at %s", cfg.Database.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"besiktning-sync-server"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Besiktning Sync Server API","version":"1.0.0","endpoints":{"/api/v1/auth/register":"POST","/api/v1/auth/login":"POST","/api/v1/sync/push":"POST (protected)","/api/v1/sync/pull":"GET (protected)","/api/v1/sync/handshake":"GET (protected)"}}`))
}
