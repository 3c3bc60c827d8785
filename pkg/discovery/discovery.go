// Package discovery locates the backend service source directory relative to
// the running executable.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/pkg/errors"
)

const ManifestFilename = "package.json"

type Options struct {
	// ExeDir is the directory holding the supervisor binary. Defaults to the
	// directory of os.Executable.
	ExeDir string
	// ServiceName is the manifest name that identifies the backend.
	ServiceName string
	// ServiceDir is the directory name used for the sibling and nested candidates.
	ServiceDir string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Manifest is the subset of package.json discovery cares about.
type Manifest struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
}

func (m *Manifest) StartScript() string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.Scripts["start"])
}

func ReadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}
	return &m, nil
}

// Candidates lists the directories Find probes, in order.
func Candidates(opts Options) []string {
	opts = withDefaults(opts)

	var out []string
	if opts.ExeDir != "" {
		out = append(out,
			filepath.Join(opts.ExeDir, "..", opts.ServiceDir),
			filepath.Join(opts.ExeDir, ".."),
			filepath.Join(opts.ExeDir, opts.ServiceDir),
		)
	}
	if v, ok := opts.LookupEnv(config.ServicePathEnv); ok && strings.TrimSpace(v) != "" {
		out = append(out, v)
	}
	for i := range out {
		out[i] = filepath.Clean(out[i])
	}
	return out
}

// Find returns the first candidate whose manifest matches. Not finding one is
// a normal outcome.
func Find(opts Options) (string, bool) {
	opts = withDefaults(opts)
	for _, dir := range Candidates(opts) {
		if Accept(dir, opts.ServiceName) {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return dir, true
			}
			return abs, true
		}
	}
	return "", false
}

// Accept reports whether dir holds a manifest naming serviceName or declaring
// a start script.
func Accept(dir string, serviceName string) bool {
	m, err := ReadManifest(dir)
	if err != nil {
		return false
	}
	if serviceName != "" && m.Name == serviceName {
		return true
	}
	return m.StartScript() != ""
}

func withDefaults(opts Options) Options {
	if opts.ExeDir == "" {
		if exe, err := os.Executable(); err == nil {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
			opts.ExeDir = filepath.Dir(exe)
		}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = config.DefaultServiceName
	}
	if opts.ServiceDir == "" {
		opts.ServiceDir = config.DefaultServiceDir
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return opts
}
