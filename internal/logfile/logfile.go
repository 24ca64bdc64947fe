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


// Package logfile provides the log writer of a run. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines.
package logfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Called by Fatal and Fatalf after flushing
var exit = os.Exit

// A log writer which tees into an optional buffered file. Safe for concurrent use
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	file   *bufio.Writer
	fileOS *os.File
}

func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Enables logging to file, closing any previous log file. Creates parent directories
func (w *Writer) AlsoToFile(fileName string) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err = w.closeFile(); err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return err
	}
	w.fileOS, err = os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	w.file = bufio.NewWriter(w.fileOS)
	return nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err = w.out.Write(p)
	if err != nil || w.file == nil {
		return n, err
	}
	return w.file.Write(p)
}

func (w *Writer) Printf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(w, format, args...)
}

func (w *Writer) Fatal(args ...interface{}) {
	fmt.Fprintln(w, args...)
	w.Close()
	exit(1)
}

func (w *Writer) Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
	w.Close()
	exit(1)
}

// Flushes the file buffer to disk
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Flush(); err != nil {
		return err
	}
	return w.fileOS.Sync()
}

// Flushes and closes the log file, if any. Further output goes to stdout only
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Flush()
	if cerr := w.fileOS.Close(); err == nil {
		err = cerr
	}
	w.file, w.fileOS = nil, nil
	return err
}
