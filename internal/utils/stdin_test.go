package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	t.Run("pipe", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer func() { _ = r.Close() }()

		expected := "Build 42 passed"
		go func() {
			_, _ = w.Write([]byte(expected + "\n\n"))
			_ = w.Close()
		}()

		msg, err := ReadInput(r)
		require.NoError(t, err)
		require.Equal(t, expected, msg)
	})

	t.Run("reader", func(t *testing.T) {
		msg, err := ReadInput(strings.NewReader("  flaky test\n"))
		require.NoError(t, err)
		require.Equal(t, "flaky test", msg)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		f, err := os.Open(path)
		require.NoError(t, err)
		defer func() { _ = f.Close() }()

		msg, err := ReadInput(f)
		require.NoError(t, err)
		require.Empty(t, msg)
	})
}
