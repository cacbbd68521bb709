// Package main provides batchctl, the admin tool of the course batch service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/burenotti/go_course_backend/internal/app/auth"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	"github.com/burenotti/go_course_backend/internal/app/messagebus"
	"github.com/burenotti/go_course_backend/internal/app/notify"
	"github.com/burenotti/go_course_backend/internal/bootstrap"
	"github.com/burenotti/go_course_backend/internal/config"
	"github.com/joho/godotenv"
)

type cliCtx struct {
	context.Context
	Config string
	Out    io.Writer
	Logger *slog.Logger
}

type cli struct {
	Config   string      `help:"Path to config file" default:"config/config.yaml" short:"c" type:"path"`
	Verbose  bool        `help:"Log debug messages" short:"v"`
	Migrate  MigrateCmd  `cmd:"" help:"Apply database migrations"`
	Rollover RolloverCmd `cmd:"" help:"Open and complete batches whose dates have come"`
	Token    TokenCmd    `cmd:"" help:"Issue an access token for a user"`
}

func main() {
	_ = godotenv.Load()

	var c cli
	ctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("batchctl"),
		kong.Description("batchctl manages the course batch service"),
	)

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := ctx.Run(&cliCtx{Context: runCtx, Config: c.Config, Out: os.Stdout, Logger: logger})
	ctx.FatalIfErrorf(err)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return err
	}
	backends, err := bootstrap.Open(ctx, cfg, ctx.Logger)
	if err != nil {
		return err
	}
	defer backends.Close(context.WithoutCancel(ctx))

	return backends.Migrate(ctx, ctx.Logger)
}

type RolloverCmd struct{}

func (c *RolloverCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}
	backends, err := bootstrap.Open(ctx, cfg, ctx.Logger)
	if err != nil {
		return err
	}
	defer backends.Close(context.WithoutCancel(ctx))

	bus := messagebus.New(ctx.Logger, 1, cfg.Notifications.QueueSize, cfg.Timeouts.Notify)
	notify.NewAudit(ctx.Logger).Register(bus)
	bus.Start(ctx)
	defer bus.Close()

	svc := batchservice.New(
		backends.Directory,
		backends.Directory,
		backends.Index,
		batchservice.Timeouts{Store: cfg.Timeouts.Store, Index: cfg.Timeouts.Index, Lookup: cfg.Timeouts.Lookup},
		location,
		ctx.Logger,
	)
	res, err := svc.Rollover(ctx, backends.BatchUoW(bus, ctx.Logger))
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "opened %d, completed %d\n", res.Opened, res.Completed)
	return nil
}

type TokenCmd struct {
	UserID string        `arg:"" help:"User to issue the token for"`
	TTL    time.Duration `help:"Token lifetime, defaults to jwt.access_token_ttl"`
}

func (c *TokenCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return err
	}
	ttl := cfg.JWT.AccessTokenTTL
	if c.TTL > 0 {
		ttl = c.TTL
	}
	authorizer := &auth.Authorizer{Secret: cfg.JWT.Secret, AccessTokenTTL: ttl}

	token, err := authorizer.GenerateAccessToken(c.UserID)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, token)
	return nil
}
