/**
 * @description
 * This is the main entry point for the ATM service. It is responsible for
 * initializing all components of the service, including configuration, the
 * database connection, the cash dispenser client, the message broker, the
 * session manager with its button panel, the idle-session sweeper, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - github.com/redis/go-redis/v9: Card-insert rate limiting backend.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/dispenserclient: Client for the cash dispenser controller.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tellerworks/atm-service/internal/api"
	"github.com/tellerworks/atm-service/internal/app"
	"github.com/tellerworks/atm-service/internal/config"
	"github.com/tellerworks/atm-service/internal/domain"
	"github.com/tellerworks/atm-service/internal/store"
	"github.com/tellerworks/atm-service/pkg/dispenserclient"
	rmrabbit "github.com/tellerworks/atm-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env file when present; environment variables win.
	_ = godotenv.Load()

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"admin jwt secret must be configured\" env=ADMIN_JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting atm-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for hardware signal events. A broker
	// outage degrades to a no-op publisher rather than blocking the kiosk.
	var events rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer producer.Close()
		events = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the cash dispenser controller.
	dispenser := dispenserclient.NewClient(cfg.DispenserBaseURL, cfg.DispenserAPIKey)

	// Optional Redis-backed card-insert rate limiting.
	var limiter app.RateLimiter
	if cfg.CardInsertRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; card-insert rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; card-insert rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; card-insert rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					limiter = app.NewRedisCardRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Side button layout: two populated slots per side, the rest padded.
	panel, err := app.NewButtonPanel(
		[]app.Slot{
			{Label: "Balance", Op: domain.OpBalance},
			{Label: "PIN Change", Op: domain.OpPinChange},
		},
		[]app.Slot{
			{Label: "Withdraw", Op: domain.OpWithdraw},
			{Label: "Logout", Op: domain.OpLogout},
		},
	)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"button panel setup failed\" err=%v", err)
	}

	// Initialize the session manager with its dependencies.
	manager := app.NewManager(repository, dispenser, events, limiter, panel, app.Options{
		MaxPINAttempts:           cfg.MaxPINAttempts,
		IdleTimeout:              time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		WithdrawalLimit:          cfg.WithdrawalLimit,
		AmountMaxDigits:          cfg.AmountMaxDigits,
		CardInsertLimitPerMinute: cfg.CardInsertRateLimitPerMinute,
	})

	// Screen transitions are observable in the service logs.
	manager.Subscribe(func(snap app.Snapshot) {
		log.Printf("level=info component=screen msg=\"screen updated\" state=%s title=%q", snap.State, snap.Title)
	})

	// Start the idle-session sweeper.
	sweeper := app.NewSweeper(manager, cfg.SessionSweepSchedule, slog.Default())
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize the API handlers and router.
	kioskHandlers := api.NewKioskHandler(manager)
	adminHandlers := api.NewAdminHandler(repository)
	router := api.NewRouter(kioskHandlers, adminHandlers, cfg.AdminJWTSecret, cfg.AdminPanelOrigin)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
