package casesfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
)

// ArchiveStamp names the archive of a run started at t, e.g. 2024-03-01T02-00-00-000Z.
func ArchiveStamp(t time.Time) string {
	return strings.Replace(t.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-", 1)
}

// Archiver copies processed export files under <root>/<timestamp>/.
type Archiver struct {
	sourceDir string
	root      string
	logger    core.Logger
	now       func() time.Time
}

func NewArchiver(sourceDir, root string, logger core.Logger) *Archiver {
	return &Archiver{sourceDir: sourceDir, root: root, logger: logger, now: time.Now}
}

// ArchiveFiles copies filenames into a new timestamped directory.
// Only failing to create the directory is returned, per-file failures are logged.
func (a *Archiver) ArchiveFiles(ctx context.Context, filenames []string) error {
	dest := filepath.Join(a.root, ArchiveStamp(a.now()))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(err, "creating archive directory")
	}

	var archived int
	for _, name := range filenames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := copyFile(filepath.Join(a.sourceDir, name), filepath.Join(dest, name)); err != nil {
			a.logger.Error(fmt.Sprintf("archiving %s: %v", name, err), err)
			continue
		}
		archived++
	}
	a.logger.Info(fmt.Sprintf("archived %d of %d CASES files to %s", archived, len(filenames), dest))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// CleanupOldArchives removes archive directories last modified more than daysToKeep days ago.
// Failures are logged; it returns the number of archives removed.
func (a *Archiver) CleanupOldArchives(ctx context.Context, daysToKeep int) int {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("listing archives: %v", err), err)
		return 0
	}

	cutoff := a.now().AddDate(0, 0, -daysToKeep)
	var removed int
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			a.logger.Warn(fmt.Sprintf("reading archive %s: %v", e.Name(), err), err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err = os.RemoveAll(filepath.Join(a.root, e.Name())); err != nil {
			a.logger.Warn(fmt.Sprintf("removing archive %s: %v", e.Name(), err), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		a.logger.Info(fmt.Sprintf("removed %d old CASES archives", removed))
	}
	return removed
}
