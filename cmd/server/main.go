package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/trovia/backend/internal/config"
	"github.com/trovia/backend/internal/handlers"
	appMiddleware "github.com/trovia/backend/internal/middleware"
	"github.com/trovia/backend/internal/services"
	"github.com/trovia/backend/internal/storage"
)

func main() {
	// Optional .env for local development; real deployments set env directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg := config.Load()
	ctx := context.Background()

	policyCfg := services.PolicyConfig{
		WindowDays:          cfg.FlagWindowDays,
		BuyerThreshold:      cfg.BuyerFlagThreshold,
		SellerThreshold:     cfg.SellerFlagThreshold,
		BaseLockDays:        cfg.BaseLockDays,
		MaxLockDays:         cfg.MaxLockDays,
		AutoUnlockOnResolve: cfg.AutoUnlockOnResolve,
	}

	var (
		flagStore    services.FlagStore
		userService  services.UserService
		orderService services.OrderService
	)

	if cfg.MongoURI != "" {
		flags, err := services.NewMongoFlagService(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			log.Fatalf("Failed to connect flag store: %v", err)
		}
		users, err := services.NewMongoUserService(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			log.Fatalf("Failed to connect user store: %v", err)
		}
		orders, err := services.NewMongoOrderService(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			log.Fatalf("Failed to connect order store: %v", err)
		}
		flagStore, userService, orderService = flags, users, orders
	} else {
		log.Println("MONGO_URI not set — using JSON-snapshot in-memory stores")
		flagSnap, err := storage.NewJSONStore(cfg.DataDir, "flags.json")
		if err != nil {
			log.Fatalf("Failed to open flag snapshot: %v", err)
		}
		userSnap, err := storage.NewJSONStore(cfg.DataDir, "users.json")
		if err != nil {
			log.Fatalf("Failed to open user snapshot: %v", err)
		}
		orderSnap, err := storage.NewJSONStore(cfg.DataDir, "orders.json")
		if err != nil {
			log.Fatalf("Failed to open order snapshot: %v", err)
		}
		flags, err := services.NewMemoryFlagStore(flagSnap)
		if err != nil {
			log.Fatalf("Failed to load flag snapshot: %v", err)
		}
		users, err := services.NewMemoryUserStore(userSnap)
		if err != nil {
			log.Fatalf("Failed to load user snapshot: %v", err)
		}
		orders, err := services.NewMemoryOrderStore(orderSnap)
		if err != nil {
			log.Fatalf("Failed to load order snapshot: %v", err)
		}
		flagStore, userService, orderService = flags, users, orders
	}

	evaluator := services.NewPolicyEvaluator(flagStore, userService, policyCfg)
	flagService := services.NewFlagService(flagStore, orderService, evaluator)

	authHandler := handlers.NewAuthHandler(userService, cfg.JWTSecret, cfg.JWTExpiration)
	orderHandler := handlers.NewOrderHandler(orderService)
	flagHandler := handlers.NewFlagHandler(flagService)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			r.Get("/auth/me", authHandler.Me)

			r.Route("/orders", func(r chi.Router) {
				r.With(appMiddleware.RequireActive(userService)).Post("/", orderHandler.CreateOrder)
				r.Get("/{orderId}", orderHandler.GetOrder)
				r.Post("/{orderId}/status", orderHandler.UpdateOrderStatus)
			})

			r.Route("/flags", func(r chi.Router) {
				r.With(appMiddleware.RequireActive(userService)).Post("/", flagHandler.CreateFlag)
				r.Get("/", flagHandler.ListFlags)
				r.Patch("/{flagId}/status", flagHandler.UpdateFlagStatus)
			})
		})
	})

	log.Printf("Trovia API server starting on %s", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
