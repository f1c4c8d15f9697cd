package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alignerQuestAPI/handlers"
	"alignerQuestAPI/internal/notification"
	"alignerQuestAPI/middleware"
	"alignerQuestAPI/repo/postgres"
	"alignerQuestAPI/services"
)

var (
	dbPool            *pgxpool.Pool
	pointsService     *services.PointsService
	missionService    *services.MissionService
	complianceService *services.ComplianceService
	sessionService    *services.SessionService
	questService      *services.QuestService
	directory         *postgres.Directory
	store             *postgres.Store
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to Postgres")

	if err := postgres.Migrate(ctx, dbPool); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Println("Migrations applied")

	store = postgres.NewStore(dbPool)
	directory = postgres.NewDirectory(dbPool)

	var push notification.PushSender
	fcmService, err := notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
		push = notification.NoopSender{}
	} else {
		push = fcmService
		log.Println("FCM Push Provider initialized successfully")
	}

	pointsService = services.NewPointsService(store)
	missionService = services.NewMissionService(store, store, directory, pointsService)
	complianceService = services.NewComplianceService(store, directory, missionService, store, push)
	sessionService = services.NewSessionService(store, directory, complianceService)
	questService = services.NewQuestService(store, store, directory, pointsService, complianceService, sessionService, missionService)

	middleware.InitPrometheus()
	services.InitMetrics()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	wearHandler := handlers.NewWearHandler(sessionService, complianceService)
	questHandler := handlers.NewQuestHandler(questService)
	missionHandler := handlers.NewMissionHandler(missionService)
	pointsHandler := handlers.NewPointsHandler(pointsService, directory)
	notificationHandler := handlers.NewNotificationHandler(store, directory)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "alignerQuest-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/wear/status", wearHandler.GetWearStatus).Methods("GET")
	protected.HandleFunc("/wear/pause", wearHandler.PauseWear).Methods("POST")
	protected.HandleFunc("/wear/resume", wearHandler.ResumeWear).Methods("POST")
	protected.HandleFunc("/wear/checkin", wearHandler.ParentCheckin).Methods("POST")

	protected.HandleFunc("/quest/status", questHandler.GetQuestStatus).Methods("GET")

	protected.HandleFunc("/missions/board", missionHandler.GetMissionBoard).Methods("GET")

	protected.HandleFunc("/points/balance", pointsHandler.GetBalance).Methods("GET")
	protected.HandleFunc("/points/transactions", pointsHandler.GetTransactions).Methods("GET")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDeviceToken).Methods("POST")

	// -------------------------------------------------------------------------
	// INTERNAL HOOKS (CLINIC BACKEND, SHARED SECRET)
	// -------------------------------------------------------------------------
	internal := api.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.InternalAuthMiddleware)

	internal.HandleFunc("/quest/photo-set-done", questHandler.MarkPhotoSetDone).Methods("POST")
	internal.HandleFunc("/quest/lesson-completed", questHandler.CompleteLesson).Methods("POST")
	internal.HandleFunc("/quest/finalize", questHandler.FinalizeQuest).Methods("POST")
	internal.HandleFunc("/missions/expire", missionHandler.ExpireOverdueMissions).Methods("POST")

	// Sweep expired missions on a schedule so past-deadline instances do not
	// linger in the board until someone calls the endpoint.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			expired, err := missionService.ExpireOverdueMissions(ctx)
			cancel()
			if err != nil {
				log.Printf("Mission expiry sweep failed: %v", err)
			} else if expired > 0 {
				log.Printf("Mission expiry sweep: %d instances expired", expired)
			}
		}
	}()

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Internal-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
