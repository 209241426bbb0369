// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"go.listbroker.dev/listcache/lib/config"
	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

func init() {
	cmd := cobra.Command{
		Use:   "dump",
		Short: "Build the demo cache and render its entry tree",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
	}
	cmd.Flags().Bool("json", false, "emit the entry tree as JSON instead of a Go-syntax dump")

	commands = append(commands, subcommand{
		Command: cmd,
		RunE: func(cfg config.Config, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d := buildDemoCache(ctx, cfg)
			defer func() {
				if err := d.shutdown(); err != nil {
					dlog.Errorf(ctx, "shutting down filler pool: %v", err)
				}
			}()

			for i := range demoCategories {
				if _, errKind := d.enterCategory(i); errKind != lru.Ok {
					dlog.Errorf(ctx, "entering category %d: %v", i, errKind)
				}
			}

			tree := d.cache.Dump(idtypes.Invalid)

			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if asJSON {
				enc := lowmemjson.ReEncoder{Out: os.Stdout}
				if err := lowmemjson.Encode(&enc, tree); err != nil {
					return err
				}
				_, err = os.Stdout.Write([]byte("\n"))
				return err
			}

			dump := spew.NewDefaultConfig()
			dump.DisablePointerAddresses = true
			dump.Fdump(os.Stdout, tree)
			return nil
		},
	})
}
