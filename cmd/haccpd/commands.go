package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"haccpkit/internal/app"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run one manual backup and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				res := a.Client().BackupNow(cmd.Context())
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				return res.Err()
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the remote service and print connectivity and schedule state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				c := a.Client()
				c.CheckStatus(cmd.Context())
				return printJSON(cmd.OutOrStdout(), c.Status(cmd.Context()))
			})
		},
	}
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print backup history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				c := a.Client()
				if clear {
					if err := c.ClearBackupLogs(cmd.Context()); err != nil {
						return err
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "local backup history cleared")
					return err
				}
				logs, err := c.BackupLogs(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), logs)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "delete the local history instead of printing it")
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var (
		at      string
		enable  bool
		disable bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or change the persisted daily backup schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return errors.New("--enable and --disable are mutually exclusive")
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				c := a.Client()
				if at != "" {
					if err := c.SetScheduleAt(at); err != nil {
						return err
					}
				}
				switch {
				case enable:
					if err := c.StartSchedule(); err != nil {
						return err
					}
				case disable:
					if err := c.StopSchedule(); err != nil {
						return err
					}
				}
				out := map[string]any{"schedule": c.ScheduleConfig()}
				if next, ok := c.NextFireTime(); ok {
					out["nextFireTime"] = next
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "daily time as HH:MM")
	cmd.Flags().BoolVar(&enable, "enable", false, "start the schedule")
	cmd.Flags().BoolVar(&disable, "disable", false, "stop the schedule")
	return cmd
}
