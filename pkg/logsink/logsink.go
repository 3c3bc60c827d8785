// Package logsink captures the supervised service's output into an
// append-only, size-rotated log file.
package logsink

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7

	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

type Stream string

const (
	Stdout Stream = "STDOUT"
	Stderr Stream = "STDERR"
)

func (s Stream) Tag() string { return "[" + string(s) + "]" }

// Open returns a rotating append writer for path, creating its directory.
func Open(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, errors.New("missing log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir log dir")
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}, nil
}

// FormatLine renders one captured line.
func FormatLine(now time.Time, stream Stream, line string) string {
	return now.UTC().Format(TimeFormat) + " " + stream.Tag() + " " + line + "\n"
}

// ParseLine splits a line written by FormatLine. ok is false for anything else.
func ParseLine(s string) (ts time.Time, stream Stream, line string, ok bool) {
	stamp, rest, found := strings.Cut(s, " ")
	if !found {
		return time.Time{}, "", "", false
	}
	t, err := time.Parse(TimeFormat, stamp)
	if err != nil {
		return time.Time{}, "", "", false
	}
	tag, line, _ := strings.Cut(rest, " ")
	switch tag {
	case Stdout.Tag():
		return t, Stdout, line, true
	case Stderr.Tag():
		return t, Stderr, line, true
	default:
		return time.Time{}, "", "", false
	}
}

// Writer serialises timestamped lines onto an underlying writer. Write
// failures are dropped: a full disk must never reach the supervised process.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, now: time.Now}
}

func (w *Writer) WriteLine(stream Stream, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.out, FormatLine(w.now(), stream, line))
}

// MaxLineBytes bounds one written line. Longer output lines are split into
// consecutive chunks of this size, each tagged like a line of its own.
const MaxLineBytes = 64 * 1024

// Pump copies stdout and stderr line by line into w until both reach EOF.
// Each stream is drained to EOF whatever happens to the other one, after a
// read error and after ctx is cancelled, so the writer never blocks on a full
// pipe. Read errors are reported once both streams are done.
func Pump(ctx context.Context, w *Writer, stdout, stderr io.Reader) error {
	var g errgroup.Group
	if stdout != nil {
		g.Go(func() error { return pumpStream(ctx, w, Stdout, stdout) })
	}
	if stderr != nil {
		g.Go(func() error { return pumpStream(ctx, w, Stderr, stderr) })
	}
	return g.Wait()
}

func pumpStream(ctx context.Context, w *Writer, stream Stream, r io.Reader) error {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	continued := false
	for {
		line, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			_, _ = io.Copy(io.Discard, r)
			return errors.Wrapf(err, "read %s", strings.ToLower(string(stream)))
		}
		// The newline ending a split line arrives as an empty read.
		if len(line) == 0 && continued {
			continued = false
			continue
		}
		continued = isPrefix
		if ctx.Err() != nil {
			continue
		}
		w.WriteLine(stream, string(line))
	}
}
