// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"go.listbroker.dev/listcache/lib/config"
	"go.listbroker.dev/listcache/lib/lru"
)

func init() {
	commands = append(commands, subcommand{
		Command: cobra.Command{
			Use:   "demo",
			Short: "Walk a small in-memory cache through enter-child, pin, and purge",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(cfg config.Config, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d := buildDemoCache(ctx, cfg)
			defer func() {
				if err := d.shutdown(); err != nil {
					dlog.Errorf(ctx, "shutting down filler pool: %v", err)
				}
			}()

			dlog.Infof(ctx, "root list %s has %d categories", d.rootID, d.rootList.Len())

			for i, name := range demoCategories {
				childID, errKind := d.enterCategory(i)
				if errKind != lru.Ok {
					dlog.Errorf(ctx, "entering category %q: %v", name, errKind)
					continue
				}
				dlog.Infof(ctx, "category %q -> list %s", name, childID)

				if i == 0 {
					d.manager.UseList(childID, true)
					track := d.cache.Lookup(childID).Kind()
					dlog.Infof(ctx, "pinned %q; list kind %T", name, track)
				}
			}

			// Re-entering the first category should reuse the already
			// cached child rather than rebuilding it.
			again, errKind := d.enterCategory(0)
			if errKind == lru.Ok {
				dlog.Infof(ctx, "re-entering %q reused list %s", demoCategories[0], again)
			}

			dlog.Infof(ctx, "cache holds %d entries, %d bytes accounted", d.cache.Count(), d.cache.TotalSize())

			return nil
		},
	})
}
