package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quizbot/internal/config"
	"quizbot/internal/register"
	"quizbot/internal/regsvc"
	"quizbot/internal/scheduler"
	"quizbot/internal/scraper"
	"quizbot/internal/server"
	"quizbot/internal/store"
	"quizbot/internal/syncsvc"
	"quizbot/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(cfg.DatabaseDSN)
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		log.Fatalf("store init: %v", err)
	}

	fetcher := scraper.NewFetcher()
	normalizer := scraper.Normalizer{Offset: cfg.CivilOffset}
	syncService := syncsvc.New(fetcher, st, normalizer)
	queue := syncsvc.NewQueue(syncService.Sync, cfg.SyncConcurrency)

	states := regsvc.NewStateStore(time.Hour)
	selector := regsvc.NewSelector(st, register.NewBrowser(), states, cfg.MinWinnerVotes)

	botApp, err := tgbot.New(cfg, st, queue, selector)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	sched := scheduler.New(st, queue, botApp)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	httpSrv := server.New(cfg, st, queue)

	go func() {
		log.Printf("HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	go func() {
		if err := botApp.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("bot stopped: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	cancel()
	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)

	log.Println("bye")
}
