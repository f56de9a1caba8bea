package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/m3rciful/goalbot/core/config"
	"github.com/m3rciful/goalbot/core/database"
	"github.com/m3rciful/goalbot/core/logger"
	"github.com/m3rciful/goalbot/internal/directory"
	"github.com/m3rciful/goalbot/internal/goalstore"
	"github.com/m3rciful/goalbot/internal/session"
	"github.com/m3rciful/goalbot/internal/transport"
)

const defaultConfigPath = "configs/goalbot.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("goalbot: %v", err)
	}
}

func run() error {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		KeysOrder: cfg.Logging.KeysOrder,
		Dir:       cfg.Logging.Dir,
		File:      cfg.Logging.BotFile,
		Profile:   cfg.Logging.Profile,
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return err
	}

	tg, err := transport.New(transport.Options{
		Token:           cfg.Telegram.Token,
		LongPollTimeout: time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	codes := directory.NewCodeGenerator(cfg.Bot.CodeAlphabet, cfg.Bot.CodeLength)
	engine := session.New(
		tg,
		directory.NewPostgres(db, codes),
		goalstore.NewPostgres(db),
		session.Options{
			AppBaseURL:    cfg.Bot.AppBaseURL,
			GoalDueInDays: cfg.Bot.GoalDueInDays,
			MaxIdleCycles: cfg.Bot.MaxIdleCycles,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
