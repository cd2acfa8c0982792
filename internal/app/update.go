package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate"
	"go.uber.org/zap"
)

// GitHub repository releases are fetched from.
const (
	updateOwner = "IAmFuckingGenius"
	updateRepo  = "ClipKeeper"
)

type UpdateChecker struct {
	logger *zap.Logger
	source selfupdate.Source
}

func NewUpdateChecker(logger *zap.Logger) (*UpdateChecker, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create update source: %w", err)
	}

	return &UpdateChecker{
		logger: logger,
		source: source,
	}, nil
}

// Check returns the newest release when it is ahead of the running build, nil
// when already up to date.
func (uc *UpdateChecker) Check(ctx context.Context) (*selfupdate.Release, error) {
	updater, err := uc.newUpdater()
	if err != nil {
		return nil, err
	}

	release, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(updateOwner, updateRepo))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no releases found")
	}

	if !release.GreaterThan(Version) {
		return nil, nil
	}
	return release, nil
}

// Update replaces the running binary with the given release. The checksum
// file published alongside the release is verified before the swap.
func (uc *UpdateChecker) Update(ctx context.Context, release *selfupdate.Release) error {
	exe, err := executablePath()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	if err := checkWritePermissions(exe); err != nil {
		return fmt.Errorf("insufficient permissions to update, move the binary to a user-writable location: %w", err)
	}

	updater, err := uc.newUpdater()
	if err != nil {
		return err
	}

	uc.logger.Info("downloading update",
		zap.String("version", release.Version()),
		zap.String("target", exe))
	return updater.UpdateTo(ctx, release, exe)
}

func (uc *UpdateChecker) newUpdater() (*selfupdate.Updater, error) {
	return selfupdate.NewUpdater(selfupdate.Config{
		Source: uc.source,
		Validator: &selfupdate.ChecksumValidator{
			UniqueFilename: "checksums.txt",
		},
	})
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

func checkWritePermissions(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer file.Close()
	return nil
}
