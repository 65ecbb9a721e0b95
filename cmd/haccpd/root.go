package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"haccpkit/internal/app"
	"haccpkit/internal/config"
)

type rootOptions struct {
	cfgPath  string
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "haccpd",
		Short:         "HACCP dashboard backup scheduler and request layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFiles...)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "path to config (json or yaml); empty uses defaults and HACCP_* env")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, ".env files to load before reading config")

	cmd.AddCommand(
		newRunCmd(opts),
		newBackupCmd(opts),
		newStatusCmd(opts),
		newLogsCmd(opts),
		newScheduleCmd(opts),
	)
	return cmd
}

// withApp builds an App for a one-shot command and releases it afterwards.
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app.App) error) error {
	a, err := app.NewApp(ctx, opts.cfgPath)
	if err != nil {
		return err
	}
	defer a.Stop(context.WithoutCancel(ctx), app.StopAppStop)
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
