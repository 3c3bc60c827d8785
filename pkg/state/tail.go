package state

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DefaultTailBytes bounds how much of a log file a tail reads.
const DefaultTailBytes = 4 << 20

// TailLines returns the last n lines of path.
func TailLines(path string, n int, maxBytes int64) ([]string, error) {
	return TailMatching(path, n, maxBytes, nil)
}

// TailMatching returns the last n lines of path that keep accepts (all lines
// when keep is nil). Only the trailing maxBytes of the file are considered, and
// a line cut by that window is skipped. Matching happens over the whole window
// before the tail is taken, so sparse matches still fill n lines.
func TailMatching(path string, n int, maxBytes int64, keep func(string) bool) ([]string, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	if n <= 0 {
		return nil, errors.Errorf("line count must be positive, got %d", n)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}

	window, err := readWindow(path, maxBytes)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, l := range strings.Split(string(window), "\n") {
		if l == "" {
			continue
		}
		if keep == nil || keep(l) {
			out = append(out, l)
		}
	}
	if len(out) > n {
		out = append([]string(nil), out[len(out)-n:]...)
	}
	return out, nil
}

func readWindow(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	b, err := io.ReadAll(io.NewSectionReader(f, offset, info.Size()-offset))
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	if offset == 0 {
		return b, nil
	}
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil, nil
	}
	return b[i+1:], nil
}
