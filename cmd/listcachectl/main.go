// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command listcachectl is a diagnostic harness for the cache: it
// builds a small in-memory demo tree through the same tree-manager
// API domain code would use, and renders it — never a UPnP/USB
// filler, and never anything that talks to a real media server.
package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"go.listbroker.dev/listcache/lib/config"
	"go.listbroker.dev/listcache/lib/profile"
	"go.listbroker.dev/listcache/lib/textui"
)

type subcommand struct {
	cobra.Command
	RunE func(cfg config.Config, cmd *cobra.Command, args []string) error
}

var commands []subcommand

func main() {
	logLevelFlag := textui.LogLevelFlag{Level: dlog.LogLevelInfo}
	var configFlag string

	argparser := &cobra.Command{
		Use:   "listcachectl {[flags]|SUBCOMMAND}",
		Short: "Exercise and inspect the hierarchical list cache",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true,
		SilenceUsage:  true,

		CompletionOptions: cobra.CompletionOptions{ //nolint:exhaustivestruct
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	argparser.PersistentFlags().StringVar(&configFlag, "config", "", "load tunables from `config.yaml` instead of the built-in defaults")
	if err := argparser.MarkPersistentFlagFilename("config"); err != nil {
		panic(err)
	}
	stopProfiling := profile.AddProfileFlags(argparser.PersistentFlags(), "profile-")

	for _, child := range commands {
		cmd := child.Command
		runE := child.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctx = dlog.WithLogger(ctx, textui.NewLogger(os.Stderr, logLevelFlag.Level))

			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) error {
				cfg := config.Default()
				if configFlag != "" {
					fh, err := os.Open(configFlag)
					if err != nil {
						return err
					}
					defer fh.Close()
					cfg, err = config.Load(fh)
					if err != nil {
						return err
					}
				}

				cmd.SetContext(ctx)
				return runE(cfg, cmd, args)
			})
			return grp.Wait()
		}
		argparser.AddCommand(&cmd)
	}

	err := argparser.ExecuteContext(context.Background())
	if stopErr := stopProfiling(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
