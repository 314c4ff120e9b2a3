package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrimary(t *testing.T) {
	cfg, err := Build("/tmp", "dump.rdb", 6379, "")
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, cfg.Role)
	assert.Empty(t, cfg.UpstreamEndpoint)
	assert.Len(t, cfg.ReplicationID, 40)
}

func TestBuildSecondaryNormalizesEndpoint(t *testing.T) {
	cfg, err := Build("", "", 6380, "localhost 6379")
	require.NoError(t, err)
	assert.Equal(t, RoleSecondary, cfg.Role)
	assert.Equal(t, "localhost:6379", cfg.UpstreamEndpoint)
}

func TestBuildRejectsMalformedReplicaof(t *testing.T) {
	_, err := Build("", "", 6380, "justahost")
	assert.Error(t, err)
}

func TestBuildRejectsOnlyOneOfDirDbfilename(t *testing.T) {
	_, err := Build("/tmp", "", 6379, "")
	assert.Error(t, err)

	_, err = Build("", "dump.rdb", 6379, "")
	assert.Error(t, err)
}

func TestLoadFileMissingIsBenign(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &File{}, f)
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: /data\ndbfilename: dump.rdb\nport: 7000\n"), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", f.Dir)
	assert.Equal(t, "dump.rdb", f.DBFilename)
	assert.Equal(t, 7000, f.Port)
}
