// cmd/beatbot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"beatbot/internal/command"
	"beatbot/internal/config"
	"beatbot/internal/discord"
	"beatbot/internal/logging"
	"beatbot/internal/middleware"
	"beatbot/internal/presence"
	"beatbot/internal/reply"
	"beatbot/internal/source"
	"beatbot/internal/stream"
	"beatbot/internal/stream/opus"
	"beatbot/internal/voice"
	"beatbot/pkg/cmd"
	"beatbot/pkg/supervisor"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("beatbot exited")
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv("BEATBOT_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "beatbot.yaml"
	}
	configPath := pflag.String("config", defaultConfig, "path to the YAML config file (env BEATBOT_CONFIG)")
	envPath := pflag.String("env", ".env", "path to the .env file")
	pflag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	closer, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().Str("version", version).Str("source", cfg.NowPlayingSource).Msg("starting beatbot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := source.NewClient(cfg.SiteURL, source.WithTimeout(cfg.HTTPTimeout))
	var nowPlaying source.NowPlaying = catalog
	if cfg.NowPlayingSource == config.NowPlayingMPD {
		nowPlaying = source.NewMPD(cfg.MPDNetwork, cfg.MPDAddr, cfg.MPDPassword)
	}

	bot, err := discord.New(cfg.DiscordToken, discord.WithHandlerTimeout(cfg.VoiceTimeout*3))
	if err != nil {
		return err
	}

	launcher := &stream.Launcher{
		FFmpegPath: cfg.FFmpegPath,
		URL:        cfg.StreamURL,
		NewEncoder: opus.NewEncoder,
	}
	streamer := voice.StreamFunc(func(ctx context.Context, link voice.Link) (voice.Transport, error) {
		s, err := launcher.Start(ctx, link)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	lifecycle := voice.NewLifecycle(bot, voice.NewRegistry(), streamer, voice.WithJoinTimeout(cfg.VoiceTimeout))

	jobs := supervisor.NewManager(func(status string) {
		log.Info().Str("component", "supervisor").Str("event", status).Msg("job status")
	})

	reg := cmd.NewRegistry()
	deps := command.Deps{
		Voice:      lifecycle,
		Catalog:    catalog,
		NowPlaying: nowPlaying,
		Render: &reply.Renderer{
			Color:    cfg.EmbedColor,
			SiteURL:  cfg.SiteURL,
			ImageURL: cfg.ImageURL,
			Footer:   cfg.FooterText,
		},
		Jobs: jobs,
	}
	for _, c := range command.All(deps, reg) {
		wrapped := cmd.Apply(c,
			middleware.WithGuildOnly(),
			middleware.WithAdminOnly(cfg.IsAdmin),
			middleware.WithCommandLogger(),
		)
		if err := reg.Register(wrapped); err != nil {
			return fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}

	syncer := presence.NewSyncer(nowPlaying, bot, cfg.PollInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobs.Start(gctx, "presence", syncer.Run)
	})
	g.Go(func() error {
		return bot.Run(gctx, discord.Handlers{
			Router:   command.NewRouter(reg, cfg.CommandPrefixes),
			Slash:    command.SlashDefinitions(reg),
			Sessions: lifecycle,
			Presence: syncer,
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		jobs.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("beatbot exited cleanly")
	return nil
}
