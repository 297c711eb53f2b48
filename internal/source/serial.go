// SPDX-License-Identifier: MIT
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	applog "emgrep/internal/log"

	"github.com/tarm/serial"
)

// SerialOptions configures a serial EMG board.
type SerialOptions struct {
	Port            string
	Baud            int
	FramesPerBuffer int
}

// Serial reads ASCII samples in volts from a serial port, one or more comma
// or whitespace separated values per line.
type Serial struct {
	opts SerialOptions
}

func NewSerial(opts SerialOptions) *Serial {
	return &Serial{opts: opts}
}

func (s *Serial) Name() string { return "serial:" + s.opts.Port }

// Stream opens the port and delivers batches until ctx is done or the port
// fails.
func (s *Serial) Stream(ctx context.Context, sink func([]float64)) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        s.opts.Port,
		Baud:        s.opts.Baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.opts.Port, err)
	}
	applog.New("source", "serial").Info("reading", "port", s.opts.Port, "baud", s.opts.Baud)

	defer port.Close()

	err = readLines(ctx, &timeoutReader{ctx: ctx, r: port}, s.opts.FramesPerBuffer, sink)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// timeoutReader retries reads that time out empty, so an idle board does
// not look like end of input. It gives up once ctx is done.
type timeoutReader struct {
	ctx context.Context
	r   io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	for {
		n, err := t.r.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		if err := t.ctx.Err(); err != nil {
			return 0, err
		}
	}
}

// readLines parses r line by line and delivers batches of size samples.
// Unparsable lines are skipped; a partial batch is flushed at end of input.
func readLines(ctx context.Context, r io.Reader, size int, sink func([]float64)) error {
	if size <= 0 {
		size = 1
	}
	logger := applog.New("source", "serial")
	scanner := bufio.NewScanner(r)
	batch := make([]float64, 0, size)
	var skipped int

	for {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			if len(batch) > 0 {
				sink(batch)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		values, err := ParseLine(scanner.Text())
		if err != nil {
			skipped++
			if skipped%100 == 1 {
				logger.Warn("skipping unparsable line", "err", err, "skipped", skipped)
			}
			continue
		}
		for _, v := range values {
			batch = append(batch, v)
			if len(batch) == size {
				sink(batch)
				batch = make([]float64, 0, size)
			}
		}
	}
}

// ParseLine parses one line of comma or whitespace separated samples. Blank
// lines yield no samples.
func ParseLine(line string) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\r'
	})
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}

var _ Source = (*Serial)(nil)
