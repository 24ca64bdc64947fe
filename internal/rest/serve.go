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


// Package rest exposes the season pipelines over HTTP. Runs stream their log as plain text.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/mlnoga/geofuse/internal/config"
	"github.com/mlnoga/geofuse/internal/layout"
	"github.com/mlnoga/geofuse/internal/logfile"
	"github.com/mlnoga/geofuse/internal/ndvi"
	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/ops/index"
	"github.com/mlnoga/geofuse/internal/ops/season"
	"github.com/mlnoga/geofuse/internal/raster"
	"github.com/mlnoga/geofuse/web"
)

// Header carrying the identifier of a pipeline run
const JobIDHeader = "X-Job-ID"

// Runs pipelines against a raster store. Request bodies are overlaid on the base configuration
type Server struct {
	Base  *config.Config
	Store raster.Store
}

// Pipelines reachable via POST /api/v1/<name>
var pipelines = []string{season.Prepare, season.Fuse, season.Crop, season.Clouds, season.NDVI, season.NDVIPrepared, season.Run}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML) })
	r.StaticFS("/js", web.JavascriptFS())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/pipelines", getPipelines)
			v1.GET("/timeseries/:kind/:source", s.getTimeseries)
			for _, name := range pipelines {
				v1.POST("/"+name, s.postPipeline(name))
			}
		}
	}
	return r
}

// Listens on the given address, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getPipelines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pipelines": pipelines})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Flushes after every write, so the client sees log lines as they happen
type flushWriter struct {
	w gin.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.w.Flush()
	return n, err
}

func (s *Server) config() *config.Config {
	cfg := *s.Base
	return &cfg
}

func (s *Server) postPipeline(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := s.config()
		if err := c.ShouldBindBodyWith(cfg, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := cfg.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		seq, err := season.ByName(name)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if name == season.Run {
			// a "steps" array in the body replaces the full pipeline
			custom := ops.NewOpSequence()
			if err := c.ShouldBindBodyWith(custom, binding.JSON); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if len(custom.Steps) > 0 {
				custom.Active = true
				seq = custom
			}
		}

		jobID := uuid.NewString()
		header := c.Writer.Header()
		header.Set(JobIDHeader, jobID)
		header.Set("Content-Type", "text/plain")
		c.Writer.WriteHeader(http.StatusOK)

		logWriter := logfile.New(flushWriter{c.Writer})
		fmt.Fprintf(logWriter, "Job %s: %s\n", jobID, name)
		if err := printArgs(logWriter, "Arguments:\n", "\n", cfg); err != nil {
			fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
			return
		}
		if err := printArgs(logWriter, "Steps:\n", "\n", seq); err != nil {
			fmt.Fprintf(logWriter, "Error printing steps: %s\n", err.Error())
			return
		}
		oc, err := ops.NewContext(logWriter, cfg, s.Store)
		if err != nil {
			fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
			return
		}
		if err := seq.Run(c.Request.Context(), oc); err != nil {
			fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
			return
		}
		fmt.Fprintf(logWriter, "Job %s done\n", jobID)
	}
}

// Returns a stored time series. Site and season default to the base configuration
func (s *Server) getTimeseries(c *gin.Context) {
	cfg := s.config()
	if site := c.Query("site"); site != "" {
		cfg.Site = site
	}
	if seasonStr := c.Query("season"); seasonStr != "" {
		year, err := strconv.Atoi(seasonStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid season '%s'", seasonStr)})
			return
		}
		cfg.Season = year
	}
	if cfg.Site == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site is required"})
		return
	}
	l, err := cfg.Layout()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dirs, err := index.SeriesDirs(l, c.Param("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dir, ok := dirs[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown kind '%s'", c.Param("kind"))})
		return
	}
	records, err := ndvi.LoadSeries(layout.TimeseriesFile(dir))
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no time series for " + c.Param("kind") + "/" + c.Param("source")})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}
