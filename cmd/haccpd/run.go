package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"haccpkit/internal/app"
)

const stopTimeout = 10 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the backup scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
}

func runDaemon(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	a, err := app.NewApp(parent, opts.cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(parent); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	// No-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopUnknown
wait:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyReloading)
				_ = a.ReloadConfig(parent)
				_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
				continue
			case syscall.SIGTERM:
				reason = app.StopSIGTERM
			default:
				reason = app.StopSIGINT
			}
		case <-a.Done():
			reason = app.StopFatalError
		case <-parent.Done():
			reason = app.StopAppStop
		}
		break wait
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	stopErr := a.Stop(ctx, reason)
	if err := a.Err(); err != nil {
		return err
	}
	return stopErr
}
