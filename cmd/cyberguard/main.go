package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cyberguard/cyberguard/internal/chat"
	"github.com/cyberguard/cyberguard/internal/credential"
	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/metrics"
	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/store"
)

const usage = `Usage: cyberguard [flags] <command>

Commands:
  tempmail     provision a disposable mailbox and watch its inbox (default)
  chat         ask the security assistant questions
  account      register and log in local users
  set-key      store the chat API key in the system keyring
  clear-key    remove the stored chat API key
  init-config  write the effective configuration to the config file

Flags:
`

// app carries the dependencies shared by every command.
type app struct {
	cfg     *model.AppConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	store   *store.SQLiteStore
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cyberguard: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("cyberguard", pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	flags.String("provider-url", "", "mailbox provider base URL")
	flags.Duration("interval", 0, "inbox poll interval")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated by size")
	flags.String("store", "", `session database path (":memory:" keeps nothing on disk)`)
	flags.String("chat-model", "", "chat model name")
	metricsAddr := flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	discard := flags.Bool("discard", false, "delete the mailbox at the provider on exit (tempmail)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	command := "tempmail"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	cfg, err := model.LoadConfig(*configPath, flags)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	a := &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(reg),
		store:   st,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			log.Info("serving metrics", zap.String("addr", *metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		// The metrics server lives as long as the command.
		defer stop()

		switch command {
		case "tempmail":
			return a.runTempMail(groupCtx, *discard)
		case "chat":
			return a.runChat(groupCtx)
		case "account":
			return a.runAccount(groupCtx)
		case "set-key":
			return a.runSetKey()
		case "clear-key":
			return credential.Delete(chat.KeyringAPIKey)
		case "init-config":
			if err := model.SaveConfig(*configPath, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s.\n", *configPath)
			return nil
		default:
			flags.Usage()
			return fmt.Errorf("unknown command %q", command)
		}
	})

	return group.Wait()
}
