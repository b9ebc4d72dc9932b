package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/warden"
	"github.com/loykin/warden/internal/history/clickhouse"
)

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor and run until shutdown",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(flags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	fc, err := warden.LoadConfig(configPath)
	if err != nil {
		return err
	}
	warden.SetupLogging(fc.Slog)

	pipe := warden.NewPipe(16)
	opts := []warden.ManagerOption{}
	if fc.Manager.Tag != "" {
		opts = append(opts, warden.WithTag(fc.Manager.Tag))
	}
	if fc.Manager.RequireAck {
		opts = append(opts, warden.WithAck())
	}
	mgr, err := warden.New(fc.Manager.Workers, fc.ServeSpec(), pipe, pipe, warden.NewStateTable(), opts...)
	if err != nil {
		return err
	}

	env, err := fc.GlobalEnv()
	if err != nil {
		return err
	}
	mgr.SetGlobalEnv(env)

	if fc.Store.DSN != "" {
		st, err := warden.NewStoreFromDSN(fc.Store.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := mgr.SetStore(st); err != nil {
			return err
		}
	}
	if fc.History.ClickHouse.Addr != "" {
		sink, err := clickhouse.New(clickhouse.Config{
			Addr:     fc.History.ClickHouse.Addr,
			Database: fc.History.ClickHouse.Database,
			Username: fc.History.ClickHouse.Username,
			Password: fc.History.ClickHouse.Password,
			Table:    fc.History.ClickHouse.Table,
		})
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		if err := sink.EnsureTable(context.Background()); err != nil {
			return err
		}
		mgr.SetHistorySinks(sink)
	}

	if err := warden.RegisterMetricsDefault(); err != nil {
		return err
	}

	for _, wc := range fc.Workers {
		var wopts []warden.Option
		if wc.Workers > 1 {
			wopts = append(wopts, warden.Workers(wc.Workers))
		}
		if wc.Restartable {
			wopts = append(wopts, warden.Restartable())
		}
		if wc.Untracked {
			wopts = append(wopts, warden.Untracked())
		}
		if wc.NoAutoStart {
			wopts = append(wopts, warden.NoAutoStart())
		}
		if wc.Transient {
			wopts = append(wopts, warden.Transient())
		}
		if _, err := mgr.Manage(wc.Ident, fc.WorkerSpec(wc), wopts...); err != nil {
			return err
		}
	}

	if err := mgr.Serve(); err != nil {
		return err
	}

	if fc.Server.Listen != "" {
		srv, err := warden.NewHTTPServer(fc.Server.Listen, fc.Server.BasePath, mgr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		slog.Info("inspector listening", "addr", fc.Server.Listen)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mgr.Monitor()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			if err := mgr.ShutdownSignal(); err != nil {
				return err
			}
		case <-monitorDone:
			// Monitor loop ended after the shutdown sentinel; drain the
			// workers, escalating on a further signal.
			mgr.Terminate()
			drained := make(chan struct{})
			go func() {
				joinAll(mgr)
				close(drained)
			}()
			select {
			case <-drained:
				return nil
			case <-sigCh:
				return mgr.ShutdownSignal()
			}
		}
	}
}

func joinAll(mgr *warden.Manager) {
	for _, h := range mgr.TransientProcesses() {
		h.Join()
	}
	for _, w := range mgr.Durable() {
		for _, h := range w.Handles() {
			h.Join()
		}
	}
}
