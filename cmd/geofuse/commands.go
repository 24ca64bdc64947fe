// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/klauspost/cpuid"
	"github.com/spf13/cobra"

	"github.com/mlnoga/geofuse/internal/rest"
	"github.com/mlnoga/geofuse/internal/stats"
)

func newStatsCmd(f *flags) *cobra.Command {
	var csv bool
	cmd := &cobra.Command{
		Use:   "stats <raster> ...",
		Short: "Show per-band statistics of raster files, accepts glob patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			for _, pattern := range args {
				matches, err := filepath.Glob(pattern)
				if err != nil {
					return err
				}
				files = append(files, matches...)
			}
			if len(files) == 0 {
				return fmt.Errorf("no files match %v", args)
			}
			sort.Strings(files)
			store := newStore()
			if csv {
				fmt.Fprintf(logWriter, "File,Band,%s\n", (&stats.Stats{}).ToCSVHeader())
			}
			for _, name := range files {
				r, err := store.Open(name)
				if err != nil {
					fmt.Fprintf(logWriter, "Error loading %s: %s\n", name, err.Error())
					continue
				}
				if !csv {
					fmt.Fprintf(logWriter, "%s: %s %s %v\n", name, r.DimensionsToString(), r.CRS, r.Bounds())
				}
				for b, band := range r.Bands {
					s := stats.Calc(band, r.IsMissing)
					if csv {
						fmt.Fprintf(logWriter, "%s,%d,%s\n", name, b+1, s.ToCSVLine())
					} else {
						fmt.Fprintf(logWriter, "  band %d: %v\n", b+1, s)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&csv, "csv", false, "print CSV instead of text")
	return cmd
}

func newServeCmd(f *flags) *cobra.Command {
	var (
		addr   string
		chroot string
		setuid int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipelines over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			store := newStore()
			if err := rest.MakeSandbox(logWriter, chroot, setuid); err != nil {
				return err
			}
			fmt.Fprintf(logWriter, "Serving %s on %s\n", cfg.DataRoot, addr)
			s := &rest.Server{Base: cfg, Store: store}
			return s.Serve(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen `address`")
	cmd.Flags().StringVar(&chroot, "chroot", "", "change filesystem root to `directory` before serving, requires root")
	cmd.Flags().IntVar(&setuid, "setuid", -1, "drop to the given user `id` before serving, -1=keep")
	return cmd
}

func newLegalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legal",
		Short: "Show license and attribution information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(logWriter, legal)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(logWriter, "Version %s\n", version)
			fmt.Fprintf(logWriter, "CPU %s with %d physical and %d logical cores\n", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
		},
	}
}
