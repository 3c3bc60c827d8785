package supervise

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestChildEnv_OverlaysServiceSettings(t *testing.T) {
	base := []string{"HOME=/home/dev", "PORT=1", "DATABASE_URL=old", "PATH=/usr/bin"}
	cfg := config.Service{DatabaseURL: "postgres://db/app", RedisURL: "redis://cache", JWTSecret: "s", Port: 4000}

	env, overlay := childEnv(base, cfg)

	v, ok := lookup(env, EnvDatabaseURL)
	require.True(t, ok)
	require.Equal(t, "postgres://db/app", v)
	v, _ = lookup(env, EnvPort)
	require.Equal(t, "4000", v)
	v, _ = lookup(env, EnvMode)
	require.Equal(t, DefaultMode, v)
	v, _ = lookup(env, "HOME")
	require.Equal(t, "/home/dev", v)

	count := 0
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PORT=" {
			count++
		}
	}
	require.Equal(t, 1, count)
	require.Equal(t, "s", overlay[EnvJWTSecret])
}

func TestChildEnv_KeepsExistingMode(t *testing.T) {
	env, overlay := childEnv([]string{"NODE_ENV=production"}, config.Defaults())
	v, ok := lookup(env, EnvMode)
	require.True(t, ok)
	require.Equal(t, "production", v)
	_, set := overlay[EnvMode]
	require.False(t, set)
}

func TestPrependPath(t *testing.T) {
	dir := t.TempDir()
	bin := binDir(dir)

	env := prependPath([]string{"PATH=/usr/bin"}, bin)
	require.Equal(t, []string{"PATH=/usr/bin"}, env)

	require.NoError(t, os.MkdirAll(bin, 0o755))
	env = prependPath([]string{"A=1", "PATH=/usr/bin"}, bin)
	v, _ := lookup(env, "PATH")
	require.Equal(t, bin+string(os.PathListSeparator)+"/usr/bin", v)
	require.Len(t, env, 2)
}

func TestServiceCommand(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, []string{"npm", "start"}, serviceCommand(dir, config.Service{}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts":{"start":"node server.js"}}`), 0o644))
	require.Equal(t, []string{"sh", "-c", "node server.js"}, serviceCommand(dir, config.Service{}))

	require.Equal(t, []string{"./run"}, serviceCommand(dir, config.Service{Command: []string{"./run"}}))
}
