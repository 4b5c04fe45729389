package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/defterly/chat-service/internal/attachment"
	"github.com/defterly/chat-service/internal/auth"
	"github.com/defterly/chat-service/internal/chat"
	"github.com/defterly/chat-service/internal/messaging"
	"github.com/defterly/chat-service/internal/presence"
	"github.com/defterly/chat-service/internal/ratelimit"
	"github.com/defterly/chat-service/internal/storage"
	"github.com/defterly/chat-service/internal/ws"
)

// Config is the chat server's environment configuration.
type Config struct {
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:":8080"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"10000"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"10s"`

	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	NATSURL     string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	MaxFileBytes     int64    `envconfig:"MAX_FILE_BYTES" default:"10485760"`
	AllowedFileTypes []string `envconfig:"ALLOWED_FILE_TYPES"`

	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3Region        string `envconfig:"S3_REGION"`
	S3UseSSL        bool   `envconfig:"S3_USE_SSL" default:"true"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
}

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- PostgreSQL ---
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	cancel()

	if err := chat.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	store := chat.NewStore(db)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = config.NATSURL
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Object storage ---
	var objects storage.ObjectStore
	if config.S3Endpoint != "" {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		objects, err = storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:      config.S3Endpoint,
			AccessKey:     config.S3AccessKey,
			SecretKey:     config.S3SecretKey,
			Bucket:        config.S3Bucket,
			Region:        config.S3Region,
			UseSSL:        config.S3UseSSL,
			PublicBaseURL: config.S3PublicBaseURL,
		})
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to object storage: %v", err)
		}
	} else {
		log.Printf("S3_ENDPOINT not set, using in-memory attachment storage")
		objects = storage.NewMemoryStore("")
	}

	serverConfig := ws.DefaultServerConfig()
	serverConfig.ListenAddr = config.ListenAddr
	serverConfig.MaxConnections = config.MaxConnections
	serverConfig.WriteTimeout = config.WriteTimeout
	serverConfig.Heartbeat = ws.HeartbeatConfig{
		Interval: config.HeartbeatInterval,
		Timeout:  config.HeartbeatTimeout,
	}

	log.Printf("chat server starting")
	log.Printf("  listen_addr:        %s", serverConfig.ListenAddr)
	log.Printf("  max_connections:    %d", serverConfig.MaxConnections)
	log.Printf("  write_timeout:      %s", serverConfig.WriteTimeout)
	log.Printf("  heartbeat_interval: %s", serverConfig.Heartbeat.Interval)
	log.Printf("  redis_addr:         %s", config.RedisAddr)
	log.Printf("  nats_url:           %s", config.NATSURL)

	registry := ws.NewRoomRegistry()
	router := ws.NewRouter(registry, store,
		attachment.NewValidator(config.MaxFileBytes, config.AllowedFileTypes),
		objects,
	)
	router.SetRateLimiter(ratelimit.NewLimiter(rdb))
	router.SetNotifier(natsClient)

	presenceStore := presence.NewStore(rdb, config.HeartbeatInterval*3)
	router.SetPresence(presenceStore)

	tokens := auth.NewTokenValidator([]byte(config.JWTSecret), store)

	gateway := ws.NewGateway(serverConfig, registry, router, tokens, store)
	gateway.SetPresence(presenceStore)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %s, shutting down", sig)
		_ = gateway.Shutdown()
		natsClient.Close()
		_ = rdb.Close()
		_ = db.Close()
		os.Exit(0)
	}()

	if err := gateway.Start(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
