package cases

// Fields are the canonical fields of one record.
type Fields map[string]string

// MappingResult is either Mapped (a field mapping was applied) or PassThrough.
type MappingResult interface {
	Fields() Fields
	isMappingResult()
}

type (
	Mapped      struct{ fields Fields }
	PassThrough struct{ fields Fields }
)

func (m Mapped) Fields() Fields      { return m.fields }
func (m PassThrough) Fields() Fields { return m.fields }

func (Mapped) isMappingResult()      {}
func (PassThrough) isMappingResult() {}

// ApplyFieldMapping renames the columns of raw to canonical field names.
// A mapped value falls back to raw[canonical] when the source column is absent.
// Unmapped columns are kept under their own name.
func ApplyFieldMapping(raw RawRecord, layout FileLayout) MappingResult {
	if len(layout.FieldMapping) == 0 {
		fields := make(Fields, len(raw))
		for k, v := range raw {
			fields[k] = v
		}
		return PassThrough{fields: fields}
	}

	fields := make(Fields, len(raw))
	for k, v := range raw {
		if _, mapped := layout.FieldMapping[k]; !mapped {
			fields[k] = v
		}
	}
	for source, canonical := range layout.FieldMapping {
		if v, ok := raw[source]; ok {
			fields[canonical] = v
		} else if v, ok := raw[canonical]; ok {
			fields[canonical] = v
		}
	}
	return Mapped{fields: fields}
}
