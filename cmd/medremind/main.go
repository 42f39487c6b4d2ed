package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tazhate/medremind/config"
	"github.com/tazhate/medremind/internal/api"
	"github.com/tazhate/medremind/internal/bot"
	"github.com/tazhate/medremind/internal/clients/caldav"
	"github.com/tazhate/medremind/internal/clients/ocr"
	"github.com/tazhate/medremind/internal/clients/sms"
	"github.com/tazhate/medremind/internal/clients/tts"
	"github.com/tazhate/medremind/internal/events"
	"github.com/tazhate/medremind/internal/logger"
	"github.com/tazhate/medremind/internal/notify"
	"github.com/tazhate/medremind/internal/scan"
	"github.com/tazhate/medremind/internal/scheduler"
	"github.com/tazhate/medremind/internal/service"
	"github.com/tazhate/medremind/internal/storage"
	"github.com/tazhate/medremind/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("medremind", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New("medremind", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("medremind stopped with error")
	}
	log.Info().Msg("medremind stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error

	store := openStore(cfg, log)
	defer store.Close()
	repo := storage.NewRepository(store)

	hub := events.NewHub()
	sched := scheduler.New(scheduler.Options{
		EarlyWarning: cfg.EarlyWarning,
		ExpireAfter:  cfg.ReminderExpireAfter,
	}, scheduler.SystemClock, log)

	// The push platform and the voice engine need the bot, which needs the
	// services; both are attached once the bot exists.
	voiceSvc := voice.New(nil, log)
	dispatcher := notify.New(notify.Options{SnoozeMinutes: int(cfg.SnoozeDefault / time.Minute)}, nil, repo, voiceSvc, hub, log)

	reminders := service.NewReminderService(repo, sched, dispatcher, hub, cfg.Timezone, cfg.SnoozeDefault, log)
	sched.SetHandler(reminders)

	medicines := service.NewMedicineService(repo, reminders, calendarMirror(ctx, cfg, log), hub, cfg.Timezone, log)
	users := service.NewUserService(repo, log)
	contacts := service.NewContactService(repo)

	var smsSender service.SMSSender
	if cfg.SMSURL != "" {
		smsSender = sms.NewClient(cfg.SMSURL, cfg.SMSAPIKey)
	} else {
		log.Warn().Msg("SMS gateway not configured, SOS goes to Telegram only")
	}
	sos := service.NewSOSService(repo, smsSender, nil, dispatcher, hub, cfg.Timezone, log)
	daily := service.NewDailyService(repo, reminders, dispatcher, voiceSvc, cfg.Timezone, cfg.ExpiryWarnDays, cfg.StockWarnDays, log)

	var scanner *scan.Scanner
	if ocrClient := ocr.NewClient(cfg.OCRURL, cfg.OCRAPIKey, ""); ocrClient.IsConfigured() {
		scanner, err = scan.New(ocrClient, voiceSvc, 0, log)
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("OCR not configured, label scanning disabled")
	}

	var tgBot *bot.Bot
	if cfg.TelegramEnabled() {
		tgBot, err = bot.New(cfg, users, medicines, reminders, sos, log)
		if err != nil {
			return err
		}
		dispatcher.SetPlatform(tgBot)
		sos.SetSender(tgBot)
		daily.SetSender(tgBot)
		if cfg.TTSURL != "" {
			voiceSvc.SetEngine(tgBot.VoiceNotes(tts.NewClient(cfg.TTSURL, cfg.TTSAPIKey)))
		}
		if cfg.WebhookURL != "" {
			if err := tgBot.SetupWebhook(); err != nil {
				return err
			}
		}
	} else {
		log.Warn().Msg("TELEGRAM_TOKEN not set, reminders reach open app sessions only")
	}

	if err := daily.RearmAll(ctx); err != nil {
		log.Error().Err(err).Msg("initial rearm")
	}

	deps := api.Deps{
		Users:     users,
		Medicines: medicines,
		Reminders: reminders,
		Contacts:  contacts,
		SOS:       sos,
		Scanner:   scanner,
		Hub:       hub,
	}
	if tgBot != nil && cfg.WebhookURL != "" {
		deps.Webhook = tgBot.WebhookHandler()
		deps.WebhookPath = tgBot.WebhookPath()
	}
	if !cfg.APIAuthEnabled() {
		log.Warn().Msg("API_USERNAME/API_PASSWORD not set, API is unauthenticated")
	}
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.New(deps, api.Options{Username: cfg.APIUsername, Password: cfg.APIPassword, Timezone: cfg.Timezone}, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobs := scheduler.NewJobs(cfg, daily, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return jobs.Start(ctx) })
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if tgBot != nil && cfg.WebhookURL == "" {
		g.Go(func() error { return tgBot.Poll(ctx) })
	}

	log.Info().Str("timezone", cfg.Timezone.String()).Bool("telegram", tgBot != nil).Msg("medremind started")
	err = g.Wait()
	dispatcher.Wait()
	return err
}

// openStore opens the configured database, falling back to memory in demo
// mode or when the database cannot be opened.
func openStore(cfg *config.Config, log zerolog.Logger) storage.Store {
	if cfg.DemoMode {
		log.Warn().Msg("demo mode, data is kept in memory only")
		return storage.NewMemoryStore()
	}

	var (
		store storage.Store
		err   error
	)
	switch cfg.DBDriver {
	case "postgres":
		store, err = storage.OpenPostgres(cfg.PostgresDSN)
	default:
		store, err = storage.OpenSQLite(cfg.DatabasePath)
	}
	if err != nil {
		log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("database unavailable, running in demo mode")
		return storage.NewMemoryStore()
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("database opened")
	return store
}

// calendarMirror returns the CalDAV mirror, or nil when it is not configured
// or the calendar cannot be found.
func calendarMirror(ctx context.Context, cfg *config.Config, log zerolog.Logger) service.CalendarMirror {
	client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.Timezone)
	if !client.IsConfigured() {
		return nil
	}
	client.SetCalendarPath(cfg.CalDAVCalendar)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	path, err := client.EnsureCalendar(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("caldav calendar not found, sync disabled")
		return nil
	}
	log.Info().Str("calendar", path).Msg("caldav sync enabled")
	return client
}
