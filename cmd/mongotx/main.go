package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikmy/mongotx/internal/api"
	"github.com/nikmy/mongotx/internal/driver/memdriver"
	"github.com/nikmy/mongotx/internal/scenario"
	"github.com/nikmy/mongotx/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:          "mongotx",
		Short:        "Session and transaction coordination for MongoDB",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&f.config, "config", "", "path to yaml config")
	root.PersistentFlags().StringSliceVar(&f.dotenv, "dotenv", nil, "dotenv files to load before the environment")
	root.PersistentFlags().StringVar(&f.env, "env", "", "environment (dev, prod)")

	root.AddCommand(newServeCmd(&f), newScenarioCmd(&f))
	return root
}

func newServeCmd(f *flags) *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*f)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
			defer cancel()

			a, err := newApp(ctx, cfg, memory)
			if err != nil {
				return errors.WrapFail(err, "init app")
			}

			srv := api.NewServer(cfg.API, a.log, a.tpl, a.reg)
			a.log.Infof("serving on %s", cfg.API.HTTP.Addr)

			err = srv.Serve(ctx)
			if ctx.Err() == nil {
				_ = a.close(context.WithoutCancel(ctx))
				return errors.WrapFail(err, "serve http")
			}

			stdlog.Println("Graceful shutdown...")
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer stop()

			err = errors.Join(srv.Shutdown(shutdownCtx), a.close(shutdownCtx))
			stdlog.Println("Shutdown complete")
			return err
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "use the in-memory deployment")
	return cmd
}

func newScenarioCmd(f *flags) *cobra.Command {
	var (
		memory     bool
		collection string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run read-your-writes and commit retry scenarios",
		Long: `The scenario command writes and reads probe documents through causally consistent
sessions and transactions. With --memory it runs against an in-process deployment
that serves reads from a lagging secondary and fails the first commit transiently.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*f)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, memory)
			if err != nil {
				return errors.WrapFail(err, "init app")
			}
			defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

			if a.memory != nil {
				a.memory.SetSecondaryReads(true)
				a.memory.FailCommits(memdriver.TransientError())
			}

			var failed []error
			for _, r := range scenario.New(a.tpl, collection, a.log).Run(ctx) {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
					failed = append(failed, errors.WrapFailf(r.Err, "run %s", r.Name))
				}
				cmd.Printf("%-18s %-10s %s\n", r.Name, r.Took.Round(time.Microsecond), status)
			}

			if a.memory != nil {
				stats := a.memory.Stats()
				cmd.Printf("sessions: %d started, %d ended; commit attempts: %d\n",
					stats.SessionsStarted, stats.SessionsEnded, stats.CommitAttempts)
			}

			return errors.Join(failed...)
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "use the in-memory deployment")
	cmd.Flags().StringVar(&collection, "collection", "", "collection for probe documents")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}
