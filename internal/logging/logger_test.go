package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))

	logger := Get(CategoryTrust)
	logger.Info("should not create any file")

	_, err := os.Stat(filepath.Join(dir, "logs"))
	require.True(t, os.IsNotExist(err), "logs dir should not be created when debug mode is off")
}

func TestInitializeEnabledWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))
	defer CloseAll()

	logger := Get(CategoryTrust)
	logger.Info("hello %s", "world")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategoryTrust): true, string(CategoryPredictor): false},
	}))
	defer CloseAll()

	require.True(t, isCategoryEnabled(CategoryTrust))
	require.False(t, isCategoryEnabled(CategoryPredictor))
	// Unlisted categories default to enabled.
	require.True(t, isCategoryEnabled(CategoryWindow))
}
