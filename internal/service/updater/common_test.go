package updater

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-broadcast/internal/config"
)

func TestParseVersionFromOutput(t *testing.T) {
	t.Parallel()

	detected, err := parseVersionFromOutput("version: 2.1.0, commit: abc123, built at: 2026-08-31")
	require.NoError(t, err)
	require.Equal(t, "2.1.0", detected)

	detected, err = parseVersionFromOutput("version: 3.0.0")
	require.NoError(t, err)
	require.Equal(t, "3.0.0", detected)

	_, err = parseVersionFromOutput("alarm-server 1.0.0")
	require.ErrorIs(t, err, errInvalidVersionOutput)

	_, err = parseVersionFromOutput("version: ")
	require.ErrorIs(t, err, errInvalidVersionOutput)
}

func TestFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "artifact.bin")
	contents := []byte("release payload")
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	checksum, err := FileChecksum(path)
	require.NoError(t, err)

	expected := sha512.Sum512(contents)
	require.Equal(t, expected[:], checksum)
}

func TestRoleFilesCoverEveryDistributedArtifact(t *testing.T) {
	t.Parallel()

	distributed := sliceToSet(DistributedFiles())

	for role, files := range RoleFiles() {
		require.NotEmpty(t, files, "role %s has no files", role)

		for _, fileName := range files {
			require.Contains(t, distributed, fileName,
				"role %s references an unhashed file", role)
		}
	}

	for role, executable := range RoleExecutables() {
		require.Contains(t, RoleFiles()[role], executable,
			"role %s restart target is not shipped to that role", role)
	}
}

// chdir switches into dir for the duration of the test, mirroring t.Chdir
// which is unavailable on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
}

func TestIsUpdaterRunning(t *testing.T) {
	chdir(t, t.TempDir())

	ctx := context.Background()

	require.False(t, IsUpdaterRunning(ctx))

	require.NoError(t, os.WriteFile(MarkerFilename, nil, 0o600))
	require.True(t, IsUpdaterRunning(ctx))
}

func TestRunPublish_WritesVerifiableManifest(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()

	for _, fileName := range DistributedFiles() {
		require.NoError(t, os.WriteFile(
			filepath.Join(directory, fileName), []byte("binary: "+fileName), 0o600))
	}

	err := RunPublish(context.Background(), &PublishOptions{
		Directory: directory,
		Version:   "4.2.0",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(directory, ManifestFilename))
	require.NoError(t, err)

	var description Description
	require.NoError(t, yaml.Unmarshal(data, &description))
	require.Equal(t, "4.2.0", description.VersionNumber)
	require.Equal(t, RoleFiles(), description.Roles)
	require.Equal(t, RoleExecutables(), description.Executables)

	// Every published checksum matches a fresh hash of the artifact.
	for fileName, encoded := range description.Files {
		published, decodeErr := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, decodeErr)

		local, sumErr := FileChecksum(filepath.Join(directory, fileName))
		require.NoError(t, sumErr)
		require.Equal(t, local, published, "checksum mismatch for %s", fileName)
	}

	require.Contains(t, description.Files, config.DefaultConfigFilename)
}

func TestValidateFileChecksum(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, os.WriteFile("artifact.bin", []byte("current"), 0o600))

	current, err := FileChecksum("artifact.bin")
	require.NoError(t, err)

	u := &runner{
		description: &Description{
			Files: map[string]string{
				"artifact.bin": base64.StdEncoding.EncodeToString(current),
				"missing.bin":  base64.StdEncoding.EncodeToString(current),
			},
		},
	}

	// Matching file is up to date.
	needsUpdate, err := u.validateFileChecksum("artifact.bin")
	require.NoError(t, err)
	require.False(t, needsUpdate)

	// Absent file always needs an update.
	needsUpdate, err = u.validateFileChecksum("missing.bin")
	require.NoError(t, err)
	require.True(t, needsUpdate)

	// Modified file is detected.
	require.NoError(t, os.WriteFile("artifact.bin", []byte("tampered"), 0o600))

	needsUpdate, err = u.validateFileChecksum("artifact.bin")
	require.NoError(t, err)
	require.True(t, needsUpdate)

	// Unlisted file is an error, not a silent skip.
	_, err = u.validateFileChecksum("rogue.bin")
	require.ErrorIs(t, err, errNoChecksum)
}
