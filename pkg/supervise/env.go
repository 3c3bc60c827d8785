package supervise

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/go-go-golems/backendctl/pkg/discovery"
)

const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
	EnvJWTSecret   = "JWT_SECRET"
	EnvPort        = "PORT"
	EnvMode        = "NODE_ENV"

	DefaultMode = "development"
)

// childEnv overlays the service settings onto base. The mode flag is only
// defaulted when base does not carry one. The overlay is returned separately
// for logging.
func childEnv(base []string, cfg config.Service) ([]string, map[string]string) {
	overlay := map[string]string{
		EnvDatabaseURL: cfg.DatabaseURL,
		EnvRedisURL:    cfg.RedisURL,
		EnvJWTSecret:   cfg.JWTSecret,
		EnvPort:        strconv.Itoa(cfg.Port),
	}
	if _, ok := lookup(base, EnvMode); !ok {
		overlay[EnvMode] = DefaultMode
	}

	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, replaced := overlay[k]; replaced {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range []string{EnvDatabaseURL, EnvRedisURL, EnvJWTSecret, EnvPort, EnvMode} {
		if v, ok := overlay[k]; ok {
			out = append(out, k+"="+v)
		}
	}
	return out, overlay
}

func lookup(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// prependPath puts dir in front of PATH when it exists.
func prependPath(env []string, dir string) []string {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return env
	}
	cur, _ := lookup(env, "PATH")
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			continue
		}
		out = append(out, kv)
	}
	if cur == "" {
		return append(out, "PATH="+dir)
	}
	return append(out, "PATH="+dir+string(os.PathListSeparator)+cur)
}

// serviceCommand picks what to run: an explicit command, the manifest start
// script, or `npm start`.
func serviceCommand(dir string, cfg config.Service) []string {
	if len(cfg.Command) > 0 {
		return append([]string{}, cfg.Command...)
	}
	if m, err := discovery.ReadManifest(dir); err == nil && m.StartScript() != "" {
		return []string{"sh", "-c", m.StartScript()}
	}
	return []string{"npm", "start"}
}

func binDir(serviceDir string) string {
	return filepath.Join(serviceDir, "node_modules", ".bin")
}
