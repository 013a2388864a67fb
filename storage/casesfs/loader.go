package casesfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding/charmap"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// MissingFilesError lists every required file absent from an export.
type MissingFilesError struct {
	Missing []string
	errs    error
}

func (e *MissingFilesError) Error() string {
	msgs := make([]string, 0, len(e.Missing))
	for _, err := range multierr.Errors(e.errs) {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, ", ")
}

// Loader reads the files of a CASES export directory.
type Loader struct {
	dir       string
	catalogue cases.Catalogue
	logger    core.Logger
	readFile  func(name string) ([]byte, error) // mockable
}

func NewLoader(dir string, catalogue cases.Catalogue, logger core.Logger) *Loader {
	return &Loader{
		dir:       dir,
		catalogue: catalogue,
		logger:    logger,
		readFile:  os.ReadFile,
	}
}

func (l *Loader) Dir() string { return l.dir }

func (l *Loader) Path(filename string) string {
	return filepath.Join(l.dir, filename)
}

// ValidateDirectory reports whether the export directory exists and can be listed.
func (l *Loader) ValidateDirectory(_ context.Context) bool {
	fi, err := os.Stat(l.dir)
	if err != nil || !fi.IsDir() {
		return false
	}
	_, err = os.ReadDir(l.dir)
	return err == nil
}

// ListFiles returns the catalogued files present in the export directory.
func (l *Loader) ListFiles(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing CASES directory")
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := l.catalogue.Get(e.Name()); ok {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// LoadAll reads every catalogued file. Missing optional files are skipped; all missing
// required files are reported together once every file was attempted.
func (l *Loader) LoadAll(ctx context.Context) (map[string]string, error) {
	contents := make(map[string]string, len(l.catalogue))
	missing := &MissingFilesError{}

	for _, def := range l.catalogue {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := l.readFile(l.Path(def.Filename))
		if err != nil {
			if def.Required {
				missing.Missing = append(missing.Missing, def.Filename)
				missing.errs = multierr.Append(missing.errs, fmt.Errorf("Required file missing: %s", def.Filename))
			} else {
				l.logger.Debug(fmt.Sprintf("optional CASES file %s not loaded: %v", def.Filename, err))
			}
			continue
		}
		contents[def.Filename] = Decode(data)
	}

	if len(missing.Missing) > 0 {
		return nil, missing
	}
	return contents, nil
}

// Decode returns the text of a CASES file: a UTF-8 BOM is stripped and
// files that are not valid UTF-8 are read as Windows-1252.
func Decode(data []byte) string {
	data = bytes.TrimPrefix(data, bomUTF8)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}
