package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediastash-tg-bot/internal/config"
	"mediastash-tg-bot/internal/delivery"
	"mediastash-tg-bot/internal/flow"
	"mediastash-tg-bot/internal/pipeline"
	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	store, err := storage.NewMongo(connectCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	bot := tg.NewClient(api, cfg.RatePerSecond, cfg.RateBurst, log)
	log.Info().Str("username", bot.Username()).Msg("connected to Telegram")

	bootstrapAdmins(ctx, store, cfg.AdminIDs, log)

	retry := tg.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryAttempts
	retry.DefaultWait = cfg.RetryWait
	deps := &flow.Deps{
		Store:    store,
		Bot:      bot,
		Channels: cfg.Channels(),
		Uploader: &pipeline.Uploader{
			Store:  store,
			Bot:    bot,
			Retry:  retry,
			Pacing: cfg.UploadPacing,
			Log:    log,
		},
		Retry: retry,
		Log:   log,
	}
	resolver := &delivery.Resolver{
		Store:  store,
		Bot:    bot,
		Retry:  retry,
		Pacing: cfg.UploadPacing,
		Log:    log,
	}
	router := flow.NewRouter(deps, resolver,
		flow.MovieFlow(), flow.SeriesFlow(), flow.AddSeasonFlow(), flow.AddEpisodeFlow(),
		flow.EditFlow(), flow.DeleteFlow(), flow.FindFlow())

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updateCfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := api.GetUpdatesChan(updateCfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		api.StopReceivingUpdates()
		return nil
	})
	g.Go(func() error {
		// One goroutine per event: users must not wait on each other's
		// uploads. The router serializes per user on its own.
		var wg sync.WaitGroup
		for u := range updates {
			ev, ok := flow.FromUpdate(u)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.Dispatch(ctx, ev)
			}()
		}
		wg.Wait()
		return nil
	})
	return g.Wait()
}

// bootstrapAdmins ensures every configured admin id exists as an admin
// operator, without resetting upload counters of known ones.
func bootstrapAdmins(ctx context.Context, store *storage.Mongo, ids []int64, log zerolog.Logger) {
	for _, id := range ids {
		op := &storage.Operator{UserID: id, CanUpload: true, IsAdmin: true}
		if err := store.SaveOperator(ctx, op); err != nil {
			log.Error().Err(err).Int64("operator", id).Msg("admin bootstrap failed")
			continue
		}
	}
}
