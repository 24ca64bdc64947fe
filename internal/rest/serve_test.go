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


package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mlnoga/geofuse/internal/config"
	"github.com/mlnoga/geofuse/internal/grid"
	"github.com/mlnoga/geofuse/internal/ndvi"
	"github.com/mlnoga/geofuse/internal/raster"
)

func newServer(t *testing.T) (*Server, *raster.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	base := config.Default()
	base.DataRoot, base.Season = t.TempDir(), 2024
	store := raster.NewMemStore()
	return &Server{Base: base, Store: store}, store
}

func do(r http.Handler, method, url, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPingAndIndex(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()
	if w := do(r, http.MethodGet, "/api/v1/ping", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("ping: got %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<html") {
		t.Errorf("index: got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/js/app.js", ""); w.Code != http.StatusOK {
		t.Errorf("app.js: got %d", w.Code)
	}
}

func TestPostRejectsInvalidConfig(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()
	tests := []struct {
		name, body string
	}{
		{"malformed", "{"},
		{"no site", `{"lat": 50}`},
		{"bad ratio", `{"site": "x", "ratio": 2.5}`},
	}
	for _, test := range tests {
		w := do(r, http.MethodPost, "/api/v1/clouds", test.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d want 400", test.name, w.Code)
		}
	}
}

func TestNDVIRunAndTimeseries(t *testing.T) {
	s, store := newServer(t)
	r := s.Router()

	if w := do(r, http.MethodGet, "/api/v1/timeseries/s2/raw?site=vineyard", ""); w.Code != http.StatusNotFound {
		t.Errorf("before run: got %d want 404", w.Code)
	}

	cfg := *s.Base
	cfg.Site = "vineyard"
	l, err := cfg.Layout()
	if err != nil {
		t.Fatal(err)
	}
	b := grid.Bounds{Left: 10, Bottom: 50, Right: 10.04, Top: 50.04}
	raw := raster.New(4, 4, 4, grid.FromBoundsAndSize(b, 4, 4), "EPSG:4326")
	for i := 0; i < raw.Pixels(); i++ {
		raw.Bands[2][i], raw.Bands[3][i] = 0.1, 0.3
	}
	if err := store.Write(filepath.Join(l.RawDir("s2"), "20240601_0.geotiff"), raw); err != nil {
		t.Fatal(err)
	}

	w := do(r, http.MethodPost, "/api/v1/ndvi", `{"site": "vineyard", "lat": 50.02, "lon": 10.02}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if _, err := uuid.Parse(w.Header().Get(JobIDHeader)); err != nil {
		t.Errorf("job id: %v", err)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("got content type %s", ct)
	}
	if !strings.Contains(w.Body.String(), "done") || strings.Contains(w.Body.String(), "Error") {
		t.Errorf("unexpected log:\n%s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/timeseries/s2/raw?site=vineyard&season=2024", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	var records []ndvi.Record
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].NDVI == nil {
		t.Errorf("got %+v", records)
	}
}

func TestRunWithSteps(t *testing.T) {
	s, store := newServer(t)
	r := s.Router()
	cfg := *s.Base
	cfg.Site = "vineyard"
	l, err := cfg.Layout()
	if err != nil {
		t.Fatal(err)
	}
	b := grid.Bounds{Left: 10, Bottom: 50, Right: 10.04, Top: 50.04}
	raw := raster.New(4, 4, 4, grid.FromBoundsAndSize(b, 4, 4), "EPSG:4326")
	for i := 0; i < raw.Pixels(); i++ {
		raw.Bands[2][i], raw.Bands[3][i] = 0.1, 0.3
	}
	if err := store.Write(filepath.Join(l.RawDir("s2"), "20240601_0.geotiff"), raw); err != nil {
		t.Fatal(err)
	}

	// the full pipeline would fail in prepare-s2 for lack of an S3 reference
	body := `{"site": "vineyard", "lat": 50.02, "lon": 10.02, "steps": [
		{"type": "ndviRaw", "active": true},
		{"type": "prepareS2", "active": false}
	]}`
	w := do(r, http.MethodPost, "/api/v1/run", body)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	log := w.Body.String()
	if !strings.Contains(log, "done") || strings.Contains(log, "Error") {
		t.Errorf("unexpected log:\n%s", log)
	}
	if !strings.Contains(log, `"type": "ndviRaw"`) {
		t.Errorf("steps not logged:\n%s", log)
	}
	if !store.Exists(l.RawNDVIFile("s2", "20240601_0.geotiff")) {
		t.Errorf("ndviRaw step did not run")
	}

	tests := []struct {
		name, body string
	}{
		{"unknown step", `{"site": "vineyard", "steps": [{"type": "teleport", "active": true}]}`},
		{"steps not a list", `{"site": "vineyard", "steps": {"type": "ndviRaw"}}`},
	}
	for _, test := range tests {
		if w := do(r, http.MethodPost, "/api/v1/run", test.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d want 400", test.name, w.Code)
		}
	}
	if w := do(r, http.MethodPost, "/api/v1/run", `{"site": "vineyard"}`); !strings.Contains(w.Body.String(), "Error") {
		t.Errorf("full pipeline ran without an S3 reference:\n%s", w.Body.String())
	}
}

func TestTimeseriesBadRequests(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()
	for _, url := range []string{
		"/api/v1/timeseries/s2/raw",
		"/api/v1/timeseries/s2/cooked?site=x",
		"/api/v1/timeseries/landsat/raw?site=x",
		"/api/v1/timeseries/s2/raw?site=x&season=last",
	} {
		if w := do(r, http.MethodGet, url, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d want 400", url, w.Code)
		}
	}
}
