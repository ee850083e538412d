package updater

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

var (
	errUpdaterAlreadyRunning = errors.New("the updater is already running")
	errEmptyDescription      = errors.New("update description is empty")
	errNoRoleFiles           = errors.New("unable to find files for role")
	errNoChecksum            = errors.New("checksum missing for file")
	errBadHTTPStatus         = errors.New("unexpected http status")
	errNoRoleExecutable      = errors.New("unable to find executable for role")
	errUnsupportedOS         = errors.New("os not supported")
	errInvalidVersionOutput  = errors.New("invalid version output format")
	errUnknownRole           = errors.New("unknown update role")
	errNoUpdateFolder        = errors.New("update folder is not configured")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Role is the host role to update for (client or server).
	Role string
}

// runner holds the mutable state and helpers for a single update execution.
// It is intentionally unexported; call Run(ctx, opts) from callers.
type runner struct {
	description        *Description      // Remote manifest describing the release.
	cfg                *config.Config    // Connection configuration loaded from YAML.
	localVersion       string            // Detected local version.
	filesOutOfDate     bool              // Whether local files differ from published checksums.
	temporaryDirectory string            // Where new files are downloaded before apply.
	downloadedFiles    map[string]string // Logical name -> local temp path.
}

// Run executes the updater lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-updater")

	up, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer up.cleanup(ctx)

	if err = up.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Updater run failed", "error", err)

		return err
	}

	logger.Info(ctx, "Updater completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid concurrent runs.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	u := &runner{
		downloadedFiles: make(map[string]string, defaultMapCapacity),
	}

	if IsUpdaterRunning(ctx) {
		return u, errUpdaterAlreadyRunning
	}

	updateMarker, err := os.Create(MarkerFilename)
	if err != nil {
		return u, err //nolint:wrapcheck // Marker path is in the error already.
	}

	if err = updateMarker.Close(); err != nil {
		return u, err //nolint:wrapcheck // Marker path is in the error already.
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return u, err
	}

	if settings.ServerUpdateFolder == "" {
		return u, errNoUpdateFolder
	}

	settings.UpdateType = strings.TrimSpace(opts.Role)
	u.cfg = settings

	return u, nil
}

// run executes the update workflow:
// 1) Stop the role's processes.
// 2) Detect local version.
// 3) Fetch remote manifest.
// 4) Compare versions and checksums.
// 5) Download and apply files if needed.
// 6) Start the role executable.
func (u *runner) run(ctx context.Context) error {
	if err := u.prepareForUpdate(ctx); err != nil {
		return err
	}

	versionUpdateNeeded, err := u.determineUpdateNeeded(ctx)
	if err != nil {
		return err
	}

	if err = u.executeUpdateIfNeeded(ctx, versionUpdateNeeded); err != nil {
		return err
	}

	logger.Info(ctx, "Starting required executables")

	if err = u.startRoleExecutable(ctx); err != nil {
		return fmt.Errorf("start role executable: %w", err)
	}

	return nil
}

// prepareForUpdate handles the initial preparation steps for the update process.
func (u *runner) prepareForUpdate(ctx context.Context) error {
	logger.Info(ctx, "Terminating alarm broadcast processes forcibly")

	if err := u.terminateDistributedProcesses(); err != nil {
		return fmt.Errorf("terminate alarm processes: %w", err)
	}

	logger.Info(ctx, "Detecting local version from installed executable")

	localVersion, err := u.detectLocalVersion(ctx)
	if err != nil {
		return fmt.Errorf("detect local version: %w", err)
	}

	u.localVersion = localVersion

	logger.Info(ctx, "Downloading the update description from the server")

	if err := u.fillUpdateDescription(ctx); err != nil {
		return fmt.Errorf("download update description: %w", err)
	}

	return nil
}

// determineUpdateNeeded checks if an update is required based on version and
// checksum comparison.
func (u *runner) determineUpdateNeeded(ctx context.Context) (bool, error) {
	remoteVersion := u.description.VersionNumber
	versionUpdateNeeded := u.compareVersions(ctx, u.localVersion, remoteVersion)

	logger.Info(ctx, "Verifying the checksum of files on the client and server")

	if err := u.validateChecksum(); err != nil {
		return false, fmt.Errorf("validate checksum: %w", err)
	}

	return versionUpdateNeeded, nil
}

// executeUpdateIfNeeded performs the update process if either version or file
// updates are needed.
func (u *runner) executeUpdateIfNeeded(ctx context.Context, versionUpdateNeeded bool) error {
	if !versionUpdateNeeded && !u.filesOutOfDate {
		logger.Info(ctx, "No update required - version and files are current")

		return nil
	}

	if versionUpdateNeeded {
		logger.InfoKV(ctx, "Version update required", "reason", "version_mismatch")
	}

	if u.filesOutOfDate {
		logger.InfoKV(ctx, "File update required", "reason", "checksum_mismatch")
	}

	logger.Info(ctx, "Downloading update files to a temporary folder")

	if err := u.downloadFiles(ctx); err != nil {
		return fmt.Errorf("download update files: %w", err)
	}

	logger.Info(ctx, "Updating local files")

	if err := u.updateFiles(ctx); err != nil {
		return fmt.Errorf("update local files: %w", err)
	}

	return nil
}

// detectLocalVersion runs the role executable to get the current version.
func (u *runner) detectLocalVersion(ctx context.Context) (string, error) {
	executable, ok := RoleExecutables()[u.cfg.UpdateType]
	if !ok {
		return "", fmt.Errorf("%w: %s", errUnknownRole, u.cfg.UpdateType)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, versionCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, executable, "version")

	output, err := cmd.Output()
	if err != nil {
		// Not an error: might be a first install with nothing on disk yet.
		logger.Warnf(ctx, "Could not get local version from %s: %v", executable, err)

		return "", nil
	}

	return parseVersionFromOutput(string(output))
}

// parseVersionFromOutput extracts the semantic version from executable
// version output of the form "version: 1.0.0, commit: abc123, ...".
func parseVersionFromOutput(output string) (string, error) {
	output = strings.TrimSpace(output)
	if strings.HasPrefix(output, "version: ") {
		parts := strings.Split(output, ",")
		if len(parts) > 0 {
			detected := strings.TrimSpace(strings.TrimPrefix(parts[0], "version: "))
			if detected != "" {
				return detected, nil
			}
		}
	}

	return "", errInvalidVersionOutput
}

// compareVersions compares local vs remote versions and logs the decision.
func (u *runner) compareVersions(ctx context.Context, localVersion, remoteVersion string) bool {
	if localVersion == "" {
		logger.Info(ctx, "No local version detected, update needed")

		return true
	}

	if localVersion != remoteVersion {
		logger.InfoKV(ctx, "Version mismatch detected",
			"local", localVersion, "remote", remoteVersion)

		return true
	}

	logger.InfoKV(ctx, "Versions match, checking file integrity",
		"version", localVersion)

	// Still check checksums for integrity.
	return false
}

// terminateDistributedProcesses kills known binaries before update.
func (u *runner) terminateDistributedProcesses() error {
	executableFiles := sliceToSet(DistributedFiles())

	processList, err := ps.Processes()
	if err != nil {
		return err //nolint:wrapcheck // Process table errors speak for themselves.
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		processID := process.Pid()
		if processID == thisProcessID {
			continue
		}

		if _, found := executableFiles[process.Executable()]; !found {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(processID)
		if err != nil {
			return err //nolint:wrapcheck // Process table errors speak for themselves.
		}

		if err = runningProcess.Kill(); err != nil {
			return err //nolint:wrapcheck // Process table errors speak for themselves.
		}
	}

	return nil
}

// fillUpdateDescription downloads and parses the remote update manifest.
// This doubles as the reachability check: if the update folder is down, the
// run stops here before anything was touched.
func (u *runner) fillUpdateDescription(ctx context.Context) error {
	response, err := u.getFileBodyFromServer(ctx, ManifestFilename)
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return err
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return err //nolint:wrapcheck // The URL is part of the transport error.
	}

	var desc Description
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("unmarshal update description: %w", err)
	}

	u.description = &desc

	return nil
}

// getFileBodyFromServer fetches a file from the update server folder.
func (u *runner) getFileBodyFromServer(ctx context.Context, fileName string) (*http.Response, error) {
	serverUpdateURL, err := url.Parse(u.cfg.ServerUpdateFolder)
	if err != nil {
		return nil, fmt.Errorf("parse update folder URL: %w", err)
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	serverUpdateURL.Path = path.Join(serverUpdateURL.Path, fileName)
	finalURL := serverUpdateURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", finalURL, err)
	}

	response, err := http.DefaultClient.Do(req)
	if err != nil {
		return response, err //nolint:wrapcheck // The URL is part of the transport error.
	}

	if response.StatusCode != http.StatusOK {
		return response, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// validateChecksum compares local and published checksums to decide whether
// an update is required. It returns early on the first mismatch to avoid
// unnecessary I/O when an update is already known to be needed.
func (u *runner) validateChecksum() error {
	if u.description == nil {
		return errEmptyDescription
	}

	files, ok := u.description.Roles[u.cfg.UpdateType]
	if !ok {
		return fmt.Errorf("role %s: %w", u.cfg.UpdateType, errNoRoleFiles)
	}

	for _, fileName := range files {
		needsUpdate, err := u.validateFileChecksum(fileName)
		if err != nil {
			return err
		}

		if needsUpdate {
			u.filesOutOfDate = true

			return nil
		}
	}

	return nil
}

// validateFileChecksum reports whether a single file differs from the
// published checksum.
func (u *runner) validateFileChecksum(fileName string) (bool, error) {
	publishedChecksum, err := u.getPublishedChecksum(fileName)
	if err != nil {
		return false, err
	}

	localChecksum, err := u.getLocalChecksum(fileName)
	if err != nil {
		return false, err
	}

	return !bytes.Equal(publishedChecksum, localChecksum), nil
}

// getPublishedChecksum retrieves and decodes the manifest checksum for a file.
func (u *runner) getPublishedChecksum(fileName string) ([]byte, error) {
	publishedBase64, hasDescription := u.description.Files[fileName]
	if !hasDescription {
		return nil, fmt.Errorf("checksum for %s: %w", fileName, errNoChecksum)
	}

	publishedChecksum, err := base64.StdEncoding.DecodeString(publishedBase64)
	if err != nil {
		return nil, fmt.Errorf("decode checksum for %s: %w", fileName, err)
	}

	return publishedChecksum, nil
}

// getLocalChecksum retrieves the local checksum for a file. Returns a nil
// checksum if the file doesn't exist, which forces an update for it.
func (u *runner) getLocalChecksum(fileName string) ([]byte, error) {
	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err //nolint:wrapcheck // Stat errors carry the path.
	}

	return FileChecksum(fileName)
}

// downloadFiles downloads required files into a temporary directory.
func (u *runner) downloadFiles(ctx context.Context) error {
	temporaryDirectory, err := os.MkdirTemp("", "alarm-broadcast-updater-")
	if err != nil {
		return err //nolint:wrapcheck // Temp dir errors carry the path.
	}

	u.temporaryDirectory = temporaryDirectory

	files := u.description.Roles[u.cfg.UpdateType]
	for _, fileName := range files {
		var response *http.Response

		response, err = u.getFileBodyFromServer(ctx, fileName)
		if err != nil {
			if response != nil {
				_ = response.Body.Close()
			}

			return err
		}

		outputFileName := filepath.Clean(filepath.Join(temporaryDirectory, fileName))

		var outputFile *os.File

		outputFile, err = os.Create(outputFileName)
		if err != nil {
			_ = response.Body.Close()

			return err //nolint:wrapcheck // Create errors carry the path.
		}

		_, err = io.Copy(outputFile, response.Body)

		_ = response.Body.Close()
		_ = outputFile.Close()

		if err != nil {
			return fmt.Errorf("download %s: %w", fileName, err)
		}

		u.downloadedFiles[fileName] = outputFileName
		logger.InfoKV(ctx, "Downloaded file", "path", outputFileName)
	}

	return nil
}

// updateFiles applies downloaded files using go-update with checksum validation.
func (u *runner) updateFiles(ctx context.Context) error {
	for fileName, downloadedFileName := range u.downloadedFiles {
		logger.InfoKV(ctx, "Updating file", "file", fileName)

		data, err := os.ReadFile(downloadedFileName)
		if err != nil {
			return err //nolint:wrapcheck // Read errors carry the path.
		}

		expectedChecksum, err := u.getPublishedChecksum(fileName)
		if err != nil {
			return err
		}

		if _, err = os.Stat(fileName); err != nil && os.IsNotExist(err) {
			if _, err = os.Create(fileName); err != nil {
				return err //nolint:wrapcheck // Create errors carry the path.
			}
		}

		logger.Debug(ctx, "Applying update")

		options := goupdate.Options{
			TargetPath: fileName,
			TargetMode: DefaultFileMode,
			Checksum:   expectedChecksum,
			Hash:       DefaultChecksumFunction,
		}

		if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
			return fmt.Errorf("apply %s: %w", fileName, err)
		}

		oldFileName := fileName + ".old"
		if _, err = os.Stat(oldFileName); err == nil {
			_ = os.Remove(oldFileName)
		}
	}

	return nil
}

// startRoleExecutable launches the role-specific binary according to the manifest.
func (u *runner) startRoleExecutable(ctx context.Context) error {
	if u.description == nil {
		return errEmptyDescription
	}

	executable, ok := u.description.Executables[u.cfg.UpdateType]
	if !ok {
		return fmt.Errorf("role %s: %w", u.cfg.UpdateType, errNoRoleExecutable)
	}

	logger.InfoKV(ctx, "Starting executable", "executable", executable)

	osLC := strings.ToLower(runtime.GOOS)

	switch {
	case strings.Contains(osLC, "linux") || strings.Contains(osLC, "darwin"):
		return exec.CommandContext(ctx, executable).Start() //nolint:wrapcheck // Exec errors carry the name.
	case strings.Contains(osLC, "windows"):
		return exec.CommandContext(ctx, "cmd.exe", "/C", "start", executable).Start() //nolint:wrapcheck // Exec errors carry the name.
	default:
		return fmt.Errorf("%s OS is not supported: %w", runtime.GOOS, errUnsupportedOS)
	}
}

// cleanup removes temporary artifacts and the running marker.
func (u *runner) cleanup(ctx context.Context) {
	if _, err := os.Stat(MarkerFilename); err == nil {
		_ = os.Remove(MarkerFilename)
	}

	if u.temporaryDirectory != "" {
		if _, err := os.Stat(u.temporaryDirectory); err == nil {
			_ = os.RemoveAll(u.temporaryDirectory)
		}
	}

	logger.Info(ctx, "The updater has been stopped")
}
