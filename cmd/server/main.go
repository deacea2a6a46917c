package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmstream/openrouter-bot/internal/ai"
	"github.com/llmstream/openrouter-bot/internal/chat"
	"github.com/llmstream/openrouter-bot/internal/config"
	"github.com/llmstream/openrouter-bot/internal/db"
	"github.com/llmstream/openrouter-bot/internal/httpapi"
	"github.com/llmstream/openrouter-bot/internal/store/rabbitmq"
	"github.com/llmstream/openrouter-bot/internal/store/redisstore"
	"github.com/llmstream/openrouter-bot/internal/stream"
	"github.com/llmstream/openrouter-bot/internal/telegram"
)

func listenAddr() string {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	// the broker is only needed for catalog sync; run without it
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("rabbit unavailable, model sync disabled: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	provider := ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.SiteURL, cfg.SiteName)
	delivery := telegram.NewClient(cfg.TelegramBaseURL, cfg.TelegramToken)
	renderer := telegram.HTMLRenderer{}

	registry := stream.NewRegistry()
	sessions := chat.NewSessions()
	dispatcher := stream.NewDispatcher(delivery, renderer, chat.NewTurnStore(repo), sessions, registry)

	svc := chat.NewService(repo, provider, delivery, dispatcher, registry, sessions,
		cfg.StreamUpdateInterval, cfg.StreamTimeout, cfg.ContextLimit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx)

	// warm the catalog at startup so context limits resolve immediately
	if pub != nil {
		go func() {
			if err := pub.PublishSync(ctx, "startup", ""); err != nil {
				log.Printf("startup model sync enqueue failed: %v", err)
			}
		}()
	}

	r := httpapi.NewRouter(cfg, svc, repo, rds, pub)

	srv := &http.Server{Addr: listenAddr(), Handler: r}
	go func() {
		log.Printf("server started addr=%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
