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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlnoga/geofuse/internal/config"
	"github.com/mlnoga/geofuse/internal/fits"
	"github.com/mlnoga/geofuse/internal/logfile"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/ops/season"
	"github.com/mlnoga/geofuse/internal/raster"
)

const version = "0.3.0"

// Command line settings. Flags override the configuration file only when set
type flags struct {
	configFile string
	dataRoot   string
	site       string
	lat, lon   float64
	season     int
	dateRange  string
	ratio      float64
	threads    int
	format     string
	log        string
	cpuprofile string
	memprofile string
	fusionCmd  string
	preview    bool
	noProgress bool
}

var logWriter = logfile.New(os.Stdout)

func main() {
	start := time.Now()
	f := &flags{}
	root := newRootCmd(f)
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	}
	if len(os.Args) > 1 && os.Args[1] != "help" && os.Args[1] != "--help" && os.Args[1] != "-h" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}
	if err := writeMemProfile(f.memprofile); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	}
	logWriter.Close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f *flags) *cobra.Command {
	var stopProfile func()
	root := &cobra.Command{
		Use:   "geofuse",
		Short: "Fuses coarse daily and fine sparse satellite reflectances for one site and season",
		Long: `geofuse Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Prepares raw Sentinel-2 and Sentinel-3 acquisitions of a site onto common grids, fuses them
into daily fine reflectances, crops the results and derives NDVI time series.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			stopProfile, err = startCPUProfile(f.cpuprofile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopProfile != nil {
				stopProfile()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "load settings from JSON or YAML `file`, default $"+config.EnvConfig)
	pf.StringVar(&f.dataRoot, "data", "", "data root `directory`, default $"+config.EnvDataRoot+" or ./data")
	pf.StringVar(&f.site, "site", "", "site name")
	pf.Float64Var(&f.lat, "lat", 0, "site latitude in degrees")
	pf.Float64Var(&f.lon, "lon", 0, "site longitude in degrees")
	pf.IntVar(&f.season, "season", 0, "season year, default current year")
	pf.StringVar(&f.dateRange, "range", "", "date range `start/end`, e.g. 2024-03-01/2024-10-31, default whole season")
	pf.Float64Var(&f.ratio, "ratio", 0, "integral ratio of coarse to fine pixel size")
	pf.IntVar(&f.threads, "threads", 0, "maximum concurrent dates, 0=automatic")
	pf.StringVar(&f.format, "format", "", "raster format, one of geotiff or fits")
	pf.StringVar(&f.log, "log", "%auto", "save log output to `file`. `%auto` writes geofuse.log into the season directory")
	pf.StringVar(&f.cpuprofile, "cpuprofile", "", "write cpu profile to `file`")
	pf.StringVar(&f.memprofile, "memprofile", "", "write memory profile to `file`")
	pf.StringVar(&f.fusionCmd, "fusion", "", "external fusion `command` with {date} {coarse} {fine} {out} placeholders, default built-in stub")
	pf.BoolVar(&f.preview, "preview", false, "write TIFF and JPEG previews of index rasters")
	pf.BoolVar(&f.noProgress, "no-progress", false, "disable progress bars")

	pipelineCmds := []struct {
		name, short string
	}{
		{season.NDVI, "Compute NDVI rasters and time series of the raw acquisitions"},
		{season.Clouds, "Flag cloudy acquisitions from the raw NDVI time series"},
		{season.PrepareS2, "Prepare fine reflectances and cloud distance fields"},
		{season.PrepareS3, "Prepare coarse composites on the cloud distance grid"},
		{season.Prepare, "Run prepare-s2 and prepare-s3"},
		{season.Fuse, "Fuse coarse and fine reflectances for every date of the range"},
		{season.Crop, "Crop fused products and their inputs to the valid rows"},
		{season.NDVIPrepared, "Compute NDVI rasters and time series of prepared and fused products"},
		{season.Run, "Run the whole season pipeline"},
	}
	for _, p := range pipelineCmds {
		root.AddCommand(newPipelineCmd(f, p.name, p.short))
	}
	root.AddCommand(newStatsCmd(f), newServeCmd(f), newLegalCmd(), newVersionCmd())
	return root
}

func newPipelineCmd(f *flags, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			seq, err := season.ByName(name)
			if err != nil {
				return err
			}
			if err := f.openLog(cfg); err != nil {
				return err
			}
			fmt.Fprintf(logWriter, "Running %s with these settings:\n%s\n", name, cfg.String())

			c, err := ops.NewContext(logWriter, cfg, newStore())
			if err != nil {
				return err
			}
			if !f.noProgress {
				c.Progress = newBarProgress(os.Stderr)
			}
			fmt.Fprintf(logWriter, "Using %d threads and %d of %d MiB memory\n", c.MaxThreads, c.BudgetMB, c.MemoryMB)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return seq.Run(ctx, c)
		},
	}
}

// Loads the configuration and applies the flags the user set
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	set := cmd.Flags().Changed
	if set("data") {
		cfg.DataRoot = config.ExpandHome(f.dataRoot)
	}
	if set("site") {
		cfg.Site = f.site
	}
	if set("lat") {
		cfg.Lat = f.lat
	}
	if set("lon") {
		cfg.Lon = f.lon
	}
	if set("season") {
		cfg.Season = f.season
	}
	if set("range") {
		cfg.DateRange = f.dateRange
	}
	if set("ratio") {
		cfg.Ratio = f.ratio
	}
	if set("threads") {
		cfg.MaxThreads = f.threads
	}
	if set("format") {
		cfg.Format = strings.ToLower(f.format)
	}
	if set("fusion") {
		cfg.Fusion.Command = f.fusionCmd
	}
	if set("preview") {
		cfg.Preview = f.preview
	}
	return cfg, nil
}

// Initializes logging to file in addition to stdout, if selected
func (f *flags) openLog(cfg *config.Config) error {
	fileName := f.log
	if fileName == "%auto" {
		l, err := cfg.Layout()
		if err != nil {
			return err
		}
		fileName = l.LogFile()
	}
	if fileName == "" {
		return nil
	}
	if err := logWriter.AlsoToFile(fileName); err != nil {
		return fmt.Errorf("unable to open logfile '%s': %w", fileName, err)
	}
	return nil
}

// A file store with all compiled-in raster codecs
func newStore() *raster.SuffixStore {
	s := raster.NewSuffixStore()
	fits.Register(s)
	registerGDAL(s)
	return s
}

// Enables CPU profiling if flagged. The returned function stops it
func startCPUProfile(fileName string) (func(), error) {
	if fileName == "" {
		return nil, nil
	}
	file, err := os.Create(fileName)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		file.Close()
	}, nil
}

func writeMemProfile(fileName string) error {
	if fileName == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return err
	}
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer file.Close()
	runtime.GC() // get up-to-date statistics
	if err := pprof.Lookup("allocs").WriteTo(file, 0); err != nil {
		return fmt.Errorf("could not write allocation profile: %w", err)
	}
	return nil
}
