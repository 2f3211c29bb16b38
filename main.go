package main

import (
	"context"
	"log"
	"os"
	"time"

	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/limiter"
	"chatrelay/internal/redis"
	"chatrelay/internal/service/ai"
	"chatrelay/internal/service/chat"
	"chatrelay/internal/service/history"
	"chatrelay/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfgPath := os.Getenv("CHATRELAY_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("CHATRELAY_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}

	var store history.Store
	if dbType == "none" {
		// Persistence disabled: every request replays an empty history.
		log.Printf("persistence disabled, conversation history will not be kept")
		store = history.NullStore{}
	} else {
		log.Printf("dbType: %s\n", dbType)
		db, err := storage.Open(dbType, cfg)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()

		// Create necessary tables: sessions, turns
		if err := storage.Migrate(db, dbType); err != nil {
			log.Fatalf("migrate database: %v", err)
		}

		var cache *history.TurnCache
		if cfg.Redis.Enabled {
			rdb, err := redis.NewClient(cfg)
			if err != nil {
				log.Fatalf("create redis client: %v", err)
			}
			defer rdb.Close()
			ttl := time.Duration(cfg.BasicConfig.HistoryCacheTTLMinutes) * time.Minute
			cache = history.NewTurnCache(rdb, ttl)
		}
		store = history.NewSQLStore(db, dbType, cache)
	}

	provider := cfg.BasicConfig.DefaultProvider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		log.Fatalf("provider %s not configured", provider)
	}
	completer, err := ai.NewService(context.Background(), provider, provCfg)
	if err != nil {
		log.Fatalf("init completion backend: %v", err)
	}

	gate := limiter.New(cfg.BasicConfig.MaxConcurrentCompletions)
	chatSvc := chat.NewService(store, completer, gate)
	handlers := api.NewHandler(chatSvc, store)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":3000"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
