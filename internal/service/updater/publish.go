package updater

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// manifestFileMode keeps the manifest readable by the HTTP server that
// distributes it.
const manifestFileMode os.FileMode = 0o644

// PublishOptions configure release manifest generation.
type PublishOptions struct {
	// Directory holds the built artifacts; the manifest is written next to
	// them. Empty means the current directory.
	Directory string
	// Version overrides the release version; empty uses this binary's own.
	Version string
}

// RunPublish hashes the distributed artifacts in a release directory and
// writes the update manifest beside them. The directory is then served
// as-is over HTTP for the apply side to consume.
func RunPublish(ctx context.Context, opts *PublishOptions) error {
	ctx = logger.WithName(ctx, "alarm-updater")

	directory := opts.Directory
	if directory == "" {
		directory = "."
	}

	description := NewDescription()
	if opts.Version != "" {
		description.VersionNumber = opts.Version
	}

	description.Roles = RoleFiles()
	description.Executables = RoleExecutables()

	for _, fileName := range DistributedFiles() {
		checksum, err := FileChecksum(filepath.Join(directory, fileName))
		if err != nil {
			return fmt.Errorf("checksum %s: %w", fileName, err)
		}

		description.Files[fileName] = base64.StdEncoding.EncodeToString(checksum)
	}

	data, err := yaml.Marshal(description)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	manifestPath := filepath.Join(directory, ManifestFilename)
	if err := os.WriteFile(manifestPath, data, manifestFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.InfoKV(ctx, "Release manifest written",
		"path", manifestPath, "version", description.VersionNumber,
		"files", len(description.Files))

	return nil
}
