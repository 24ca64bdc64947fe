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


package fusion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mlnoga/geofuse/internal/dates"
)

// Runs an external command per date. Arguments may contain the placeholders {date},
// {coarse}, {fine}, {out}, {product}, {maxDays}, {datePosition}, {minImportance} and {ratio}
type Exec struct {
	Command []string
	Log     io.Writer // Receives the combined output of the command, may be nil
}

// Splits a command line on whitespace, keeping single- or double-quoted arguments together
func ParseCommand(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inArg := false
	var quote rune
	for _, c := range line {
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(c)
		case c == '\'' || c == '"':
			quote, inArg = c, true
		case c == ' ' || c == '\t' || c == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command '%s'", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty fusion command")
	}
	return args, nil
}

// Substitutes the placeholders in all arguments
func (e Exec) Args(date time.Time, coarseDir, fineDir, outDir string, p Params) []string {
	r := strings.NewReplacer(
		"{date}", dates.Token(date),
		"{coarse}", coarseDir,
		"{fine}", fineDir,
		"{out}", outDir,
		"{product}", p.Product,
		"{maxDays}", strconv.Itoa(p.MaxDays),
		"{datePosition}", strconv.Itoa(p.DatePosition),
		"{minImportance}", strconv.FormatFloat(p.MinImportance, 'g', -1, 64),
		"{ratio}", strconv.Itoa(p.Ratio),
	)
	args := make([]string, len(e.Command))
	for i, a := range e.Command {
		args[i] = r.Replace(a)
	}
	return args
}

func (e Exec) Fuse(ctx context.Context, date time.Time, coarseDir, fineDir, outDir string, p Params) error {
	if len(e.Command) == 0 {
		return errors.New("empty fusion command")
	}
	args := e.Args(date, coarseDir, fineDir, outDir, p)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	err := cmd.Run()
	if e.Log != nil && out.Len() > 0 {
		e.Log.Write(out.Bytes())
	}
	if err != nil {
		return &FusionOperationError{Date: date, Err: fmt.Errorf("%s: %w", args[0], err)}
	}
	return nil
}
