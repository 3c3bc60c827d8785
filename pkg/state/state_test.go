package state

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPIDFile_RoundTrip(t *testing.T) {
	home := t.TempDir()
	path := PIDPath(home)

	_, ok := ReadPID(path)
	require.False(t, ok)

	require.NoError(t, WritePID(path, 4242))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "4242", string(b))

	pid, ok := ReadPID(path)
	require.True(t, ok)
	require.Equal(t, 4242, pid)

	require.NoError(t, WritePID(path, 7))
	pid, ok = ReadPID(path)
	require.True(t, ok)
	require.Equal(t, 7, pid)

	require.NoError(t, RemovePID(path))
	require.NoError(t, RemovePID(path))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestReadPID_Unparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), PIDFilename)
	for _, body := range []string{"", "abc", "-3", "0", "12x"} {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, ok := ReadPID(path)
		require.False(t, ok, "body %q", body)
	}

	require.NoError(t, os.WriteFile(path, []byte(" 99\n"), 0o644))
	pid, ok := ReadPID(path)
	require.True(t, ok)
	require.Equal(t, 99, pid)
}

func TestWritePID_RejectsNonPositive(t *testing.T) {
	require.Error(t, WritePID(filepath.Join(t.TempDir(), PIDFilename), 0))
}

func TestHomeDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	home, err := HomeDir()
	require.NoError(t, err)
	require.Equal(t, dir, home)
	require.Equal(t, filepath.Join(dir, "logs", "server.log"), ServerLogPath(home))
}

func TestProcessAlive(t *testing.T) {
	require.True(t, ProcessAlive(os.Getpid()))
	require.False(t, ProcessAlive(0))
	require.False(t, ProcessAlive(-1))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.False(t, ProcessAlive(cmd.Process.Pid))
}

func TestSanitizeEnv(t *testing.T) {
	out := SanitizeEnv(map[string]string{
		"JWT_SECRET":   "hunter2",
		"DATABASE_URL": "postgres://app:pw@localhost:5432/app",
		"REDIS_URL":    "redis://localhost:6379",
		"PORT":         "3000",
	})
	require.Equal(t, redactedValue, out["JWT_SECRET"])
	require.NotContains(t, out["DATABASE_URL"], "pw@")
	require.True(t, strings.HasPrefix(out["DATABASE_URL"], "postgres://app:"))
	require.Equal(t, "redis://localhost:6379", out["REDIS_URL"])
	require.Equal(t, "3000", out["PORT"])
	require.Nil(t, SanitizeEnv(nil))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644))

	lines, err := TailLines(path, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, lines)

	lines, err = TailLines(path, 10, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, lines)

	_, err = TailLines(path, 0, 0)
	require.Error(t, err)
	_, err = TailLines(path, -5, 0)
	require.Error(t, err)

	_, err = TailLines(filepath.Join(t.TempDir(), "missing"), 2, 0)
	require.Error(t, err)
}

func TestTailMatching_FiltersBeforeCutting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	var b strings.Builder
	b.WriteString("keep 1\n")
	for i := 0; i < 100; i++ {
		b.WriteString("noise\n")
	}
	b.WriteString("keep 2\nnoise\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	isKeep := func(l string) bool { return strings.HasPrefix(l, "keep") }
	lines, err := TailMatching(path, 2, 0, isKeep)
	require.NoError(t, err)
	require.Equal(t, []string{"keep 1", "keep 2"}, lines)

	lines, err = TailMatching(path, 1, 0, isKeep)
	require.NoError(t, err)
	require.Equal(t, []string{"keep 2"}, lines)

	lines, err = TailMatching(path, 5, 20, isKeep)
	require.NoError(t, err)
	require.Equal(t, []string{"keep 2"}, lines)
}
