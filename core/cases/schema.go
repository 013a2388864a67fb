package cases

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/staffhub/backend/core"
)

// expected tables of a relationships document
var expectedTables = []string{"DF_8865", "SF_8865"}

// SchemaDocument is the external relationships document.
type SchemaDocument struct {
	PrimaryKeys map[string][]string   `json:"primary_keys" yaml:"primary_keys"`
	FileLayouts map[string]FileLayout `json:"file_layouts,omitempty" yaml:"file_layouts,omitempty"`
}

// SchemaNotFoundError is returned when neither the document nor the defaults describe a file.
type SchemaNotFoundError struct {
	Filename string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("no schema layout found for %s", e.Filename)
}

// Registry resolves file layouts. A Registry caches its resolutions, so one is built per run:
// edits to the relationships document are picked up by the next run.
type Registry struct {
	path     string
	logger   core.Logger
	defaults map[string]FileLayout
	readFile func(name string) ([]byte, error) // mockable

	docOnce sync.Once
	doc     *SchemaDocument
	docErr  error

	mu    sync.Mutex
	cache map[string]FileLayout
}

func NewRegistry(path string, logger core.Logger) *Registry {
	return &Registry{
		path:     path,
		logger:   logger,
		defaults: DefaultLayouts(),
		readFile: os.ReadFile,
		cache:    make(map[string]FileLayout),
	}
}

// LoadSchemaDocument reads a relationships document, as YAML when the extension says so, else JSON.
func LoadSchemaDocument(data []byte, path string) (*SchemaDocument, error) {
	doc := new(SchemaDocument)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, errors.Wrap(err, "decoding yaml")
		}
	default:
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, errors.Wrap(err, "decoding json")
		}
	}
	return doc, nil
}

func (r *Registry) document() (*SchemaDocument, error) {
	r.docOnce.Do(func() {
		if r.path == "" {
			r.docErr = errors.New("no relationships document configured")
			return
		}
		data, err := r.readFile(r.path)
		if err != nil {
			r.docErr = errors.Wrap(err, "reading relationships document")
			return
		}
		r.doc, r.docErr = LoadSchemaDocument(data, r.path)
		if r.docErr == nil {
			r.logger.Info(fmt.Sprintf("loaded relationships document %s", r.path))
		}
	})
	return r.doc, r.docErr
}

// ResolveLayout returns the layout of filename: the document's layout when present and usable,
// else the compiled-in default. The document failing to load never fails resolution.
func (r *Registry) ResolveLayout(filename string) (FileLayout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if layout, ok := r.cache[filename]; ok {
		return layout.clone(), nil
	}

	layout, ok := r.fromDocument(filename)
	if !ok {
		layout, ok = r.defaults[filename]
	}
	if !ok {
		return FileLayout{}, &SchemaNotFoundError{Filename: filename}
	}
	if layout.Filename == "" {
		layout.Filename = filename
	}
	layout = layout.clone()
	r.cache[filename] = layout
	return layout.clone(), nil
}

func (r *Registry) fromDocument(filename string) (FileLayout, bool) {
	doc, err := r.document()
	if err != nil {
		r.logger.Warn(fmt.Sprintf("relationships document unavailable, using default layout for %s: %v", filename, err), err)
		return FileLayout{}, false
	}
	layout, ok := doc.FileLayouts[filename]
	if !ok {
		return FileLayout{}, false
	}
	if err = layout.check(); err != nil {
		r.logger.Warn(fmt.Sprintf("invalid layout for %s in relationships document, using default: %v", filename, err), err)
		return FileLayout{}, false
	}
	return layout, true
}

// PrimaryKeys returns the primary key columns of a CASES table, if the document declares them.
func (r *Registry) PrimaryKeys(table string) []string {
	doc, err := r.document()
	if err != nil {
		return nil
	}
	return doc.PrimaryKeys[table]
}

// ValidateDocument checks the relationships document is loadable and usable.
// Missing expected tables are only logged.
func (r *Registry) ValidateDocument() error {
	doc, err := r.document()
	if err != nil {
		return err
	}
	if len(doc.PrimaryKeys) == 0 {
		return errors.New("relationships document is missing primary_keys")
	}

	for _, table := range expectedTables {
		if _, ok := doc.PrimaryKeys[table]; !ok {
			r.logger.Warn(fmt.Sprintf("relationships document has no primary keys for table %s", table))
		}
	}

	var errs error
	for filename, layout := range doc.FileLayouts {
		if err := layout.check(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "layout %s", filename))
		}
	}
	return errs
}

func (l FileLayout) check() error {
	switch l.Format {
	case "", FormatFixedWidth:
	case FormatCSV:
		for _, col := range l.Columns {
			if col.Name == "" {
				return errors.New("column without a name")
			}
		}
		return nil
	default:
		return errors.Errorf("unknown format %q", l.Format)
	}

	if len(l.Columns) == 0 {
		return errors.New("no columns")
	}
	for _, col := range l.Columns {
		if col.Name == "" {
			return errors.New("column without a name")
		}
		if col.Start < 0 || col.Width <= 0 {
			return errors.Errorf("column %s has an invalid window (start %d, width %d)", col.Name, col.Start, col.Width)
		}
	}
	return nil
}

func (l FileLayout) clone() FileLayout {
	cols := make([]Column, len(l.Columns))
	copy(cols, l.Columns)
	l.Columns = cols
	if l.FieldMapping != nil {
		mapping := make(map[string]string, len(l.FieldMapping))
		for k, v := range l.FieldMapping {
			mapping[k] = v
		}
		l.FieldMapping = mapping
	}
	return l
}
