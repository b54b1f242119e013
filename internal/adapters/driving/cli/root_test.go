package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"write", "index", "rebuild", "search", "show", "stats", "runs", "dedup", "validate", "schema", "config", "mcp", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	for _, name := range []string{"root", "config-dir", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func withBootstrap(t *testing.T, fn BootstrapFunc) {
	t.Helper()
	old := bootstrap
	SetBootstrap(fn)
	t.Cleanup(func() { bootstrap = old })
}

func TestBootstrap_ReceivesGlobalFlags(t *testing.T) {
	ts := setupTestServices(t)
	var got []Options
	withBootstrap(t, func(opts Options) (*Services, error) {
		got = append(got, opts)
		return &Services{Documents: ts.documents, Indexer: ts.indexer}, nil
	})
	ts.documents.stats = newStats()

	_, err := execute(t, "--root", "/tmp/archive", "--config-dir", "/tmp/cfg", "stats")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Options{Root: "/tmp/archive", ConfigDir: "/tmp/cfg"}, got[0])

	_, err = execute(t, "rebuild")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].FreshCatalog)
	assert.False(t, got[1].ConfigOnly)

	ts.settings.settings.RepositoryRoot = "/srv"
	withBootstrap(t, func(opts Options) (*Services, error) {
		got = append(got, opts)
		return &Services{Settings: ts.settings}, nil
	})
	_, err = execute(t, "config", "get")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[2].ConfigOnly)
}

func TestBootstrap_SkippedForOfflineCommands(t *testing.T) {
	called := false
	withBootstrap(t, func(Options) (*Services, error) {
		called = true
		return &Services{}, nil
	})
	t.Cleanup(func() { resetFlags(rootCmd) })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "archivist version")

	_, err = execute(t, "schema")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestBootstrap_ErrorAbortsCommand(t *testing.T) {
	setupTestServices(t)
	boom := errors.New("cannot open catalog")
	withBootstrap(t, func(Options) (*Services, error) { return nil, boom })

	_, err := execute(t, "stats")
	assert.ErrorIs(t, err, boom)
}

func TestExecute_ReleasesServices(t *testing.T) {
	closed := 0
	SetServices(&Services{Close: func() error { closed++; return nil }})
	t.Cleanup(func() { SetServices(&Services{}) })

	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, Execute())
	assert.Equal(t, 1, closed)

	require.NoError(t, release())
	assert.Equal(t, 1, closed)
}
