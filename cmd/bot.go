package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Laisky/telefiles/internal/bot"
	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/internal/session"
	"github.com/Laisky/telefiles/internal/stats"
	"github.com/Laisky/telefiles/internal/web"
	"github.com/Laisky/telefiles/library/config"
	"github.com/Laisky/telefiles/library/db/kv"
	"github.com/Laisky/telefiles/library/log"
)

var botCMD = &cobra.Command{
	Use:   "bot",
	Short: "bot",
	Long:  `run the webhook server`,
	Args:  gcmd.NoExtraArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return initialize(cmd.Context(), cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

func init() {
	rootCMD.AddCommand(botCMD)
}

func runBot(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromSettings()
	if err != nil {
		return errors.Wrap(err, "build config")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}

	msgr, err := bot.NewTelebotMessenger(cfg)
	if err != nil {
		return errors.Wrap(err, "new messenger")
	}

	dispatcher, err := bot.New(cfg,
		registry.New(store, cfg.IsAdmin),
		session.NewStore(store),
		stats.NewRecorder(store),
		msgr,
	)
	if err != nil {
		return errors.Wrap(err, "new dispatcher")
	}

	return web.RunServer(ctx, cfg, dispatcher)
}

func openStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		return kv.NewMongoStore(ctx, kv.MongoDialInfo{
			Addr:       cfg.Store.Mongo.Addr,
			DBName:     cfg.Store.Mongo.DBName,
			User:       cfg.Store.Mongo.User,
			Pwd:        cfg.Store.Mongo.Pwd,
			Collection: cfg.Store.Mongo.Collection,
		})
	case "redis":
		return kv.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Pwd,
			DB:       cfg.Store.Redis.DB,
		}), nil
	case "memory":
		log.Logger.Warn("using in-memory store, data will not survive restarts",
			zap.String("driver", cfg.Store.Driver))
		return kv.NewMemStore(), nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
