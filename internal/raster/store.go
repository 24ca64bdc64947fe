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


package raster

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// A place to load rasters from and save rasters to. Paths are slash- or OS-separated file names
type Store interface {
	Open(fileName string) (*Raster, error)
	Write(fileName string, r *Raster) error
	Exists(fileName string) bool
	Glob(pattern string) ([]string, error)
	MakeDir(dir string) error
}

// A file format which can read and write rasters from and to named files
type Codec interface {
	Name() string
	ReadFile(fileName string) (*Raster, error)
	WriteFile(fileName string, r *Raster) error
}

// A store on the local file system, which picks the codec by file name suffix.
// Writes go to a temporary file in the target directory first, and are renamed on success,
// so partially written outputs never count as existing
type SuffixStore struct {
	codecs map[string]Codec // lower case suffix including the dot, e.g. ".fits.gz"
}

func NewSuffixStore() *SuffixStore {
	return &SuffixStore{codecs: map[string]Codec{}}
}

// Registers a codec for the given suffixes. Later registrations override earlier ones
func (s *SuffixStore) Register(c Codec, suffixes ...string) {
	for _, suf := range suffixes {
		s.codecs[strings.ToLower(suf)] = c
	}
}

// Returns the registered suffixes, sorted
func (s *SuffixStore) Suffixes() []string {
	res := make([]string, 0, len(s.codecs))
	for suf := range s.codecs {
		res = append(res, suf)
	}
	sort.Strings(res)
	return res
}

// Returns the codec with the longest suffix matching the file name
func (s *SuffixStore) CodecFor(fileName string) (Codec, error) {
	lower := strings.ToLower(fileName)
	var best Codec
	bestLen := 0
	for suf, c := range s.codecs {
		if len(suf) > bestLen && strings.HasSuffix(lower, suf) {
			best, bestLen = c, len(suf)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no raster codec for %s", fileName)
	}
	return best, nil
}

func (s *SuffixStore) Open(fileName string) (*Raster, error) {
	c, err := s.CodecFor(fileName)
	if err != nil {
		return nil, err
	}
	r, err := c.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("reading %s as %s: %w", fileName, c.Name(), err)
	}
	r.FileName = fileName
	return r, nil
}

func (s *SuffixStore) Write(fileName string, r *Raster) error {
	c, err := s.CodecFor(fileName)
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	dir, base := filepath.Split(fileName)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := filepath.Join(dir, ".partial-"+base)
	if err := c.WriteFile(tmp, r); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s as %s: %w", fileName, c.Name(), err)
	}
	return os.Rename(tmp, fileName)
}

func (s *SuffixStore) Exists(fileName string) bool {
	st, err := os.Stat(fileName)
	return err == nil && !st.IsDir()
}

// Creates the directory and its parents, for collaborators writing files directly
func (s *SuffixStore) MakeDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// Returns the sorted matches of the pattern. Temporary files from interrupted writes are ignored
func (s *SuffixStore) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	return filterPartials(matches), nil
}

func filterPartials(matches []string) []string {
	o := 0
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), ".partial-") {
			matches[o] = m
			o++
		}
	}
	matches = matches[:o]
	sort.Strings(matches)
	return matches
}

// An in-memory store. Rasters are deep copied on write and on open. Safe for concurrent use
type MemStore struct {
	mu    sync.RWMutex
	files map[string]*Raster
}

func NewMemStore() *MemStore {
	return &MemStore{files: map[string]*Raster{}}
}

func (m *MemStore) Open(fileName string) (*Raster, error) {
	m.mu.RLock()
	r, ok := m.files[path.Clean(filepath.ToSlash(fileName))]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", fileName, os.ErrNotExist)
	}
	res := r.Clone()
	res.FileName = fileName
	return res, nil
}

func (m *MemStore) Write(fileName string, r *Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.files[path.Clean(filepath.ToSlash(fileName))] = r.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Exists(fileName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path.Clean(filepath.ToSlash(fileName))]
	return ok
}

// Matches the pattern against all stored names with path.Match semantics. Results are sorted
func (m *MemStore) Glob(pattern string) ([]string, error) {
	pattern = path.Clean(filepath.ToSlash(pattern))
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []string
	for name := range m.files {
		if ok, _ := path.Match(pattern, name); ok {
			res = append(res, name)
		}
	}
	sort.Strings(res)
	return res, nil
}

// Directories are implicit
func (m *MemStore) MakeDir(dir string) error { return nil }

// Number of stored rasters
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
