package cases

// Column is a fixed-width window [Start, Start+Width) of a line, counted in characters.
type Column struct {
	Name  string `json:"name" yaml:"name"`
	Start int    `json:"start" yaml:"start"`
	Width int    `json:"width" yaml:"width"`
}

// File formats. Fixed width is the default.
const (
	FormatFixedWidth = "fixed"
	FormatCSV        = "csv"
)

// FileLayout describes how to read one CASES file.
// FieldMapping maps source column names to canonical field names.
// For CSV files only the column names are used, as headers; without columns the first row holds them.
type FileLayout struct {
	Filename     string            `json:"filename" yaml:"filename"`
	TableName    string            `json:"table_name" yaml:"table_name"`
	Format       string            `json:"format,omitempty" yaml:"format,omitempty"`
	Columns      []Column          `json:"columns" yaml:"columns"`
	FieldMapping map[string]string `json:"field_mapping,omitempty" yaml:"field_mapping,omitempty"`
}

func (l FileLayout) IsCSV() bool {
	return l.Format == FormatCSV
}

// Headers are the column names, in order.
func (l FileLayout) Headers() []string {
	names := make([]string, 0, len(l.Columns))
	for _, col := range l.Columns {
		names = append(names, col.Name)
	}
	return names
}

var (
	tableToFile = map[string]string{
		"DF_8865":      StudentFile,
		"SF_8865":      StaffFile,
		"ENROL_8865":   EnrolmentFile,
		"PARENT_8865":  ParentFile,
		"HOMEGRP_8865": HomeGroupFile,
		"HOUSE_8865":   HouseFile,
	}
	fileToTable = func() map[string]string {
		m := make(map[string]string, len(tableToFile))
		for table, file := range tableToFile {
			m[file] = table
		}
		return m
	}()
)

// TableForFile returns the CASES table exported to filename.
func TableForFile(filename string) (string, bool) {
	table, ok := fileToTable[filename]
	return table, ok
}

// DefaultLayouts are used when the relationships document has no layout for a file.
// Column positions are 0-indexed.
func DefaultLayouts() map[string]FileLayout {
	return map[string]FileLayout{
		StudentFile: {
			Filename:  StudentFile,
			TableName: "DF_8865",
			Columns: []Column{
				{Name: "CASES_KEY", Start: 0, Width: 10},
				{Name: "SURNAME", Start: 10, Width: 30},
				{Name: "GIVEN_NAMES", Start: 40, Width: 30},
				{Name: "DOB", Start: 70, Width: 8}, // YYYYMMDD
				{Name: "SEX", Start: 78, Width: 1},
				{Name: "HOMEKEY", Start: 79, Width: 10},
				{Name: "HOUSE", Start: 89, Width: 10},
				{Name: "YEAR_LEVEL", Start: 99, Width: 2},
				{Name: "EMAIL", Start: 101, Width: 100},
				{Name: "TELEPHONE", Start: 201, Width: 20},
			},
			FieldMapping: map[string]string{
				"CASES_KEY":   "studentId",
				"SURNAME":     "surname",
				"GIVEN_NAMES": "givenNames",
				"DOB":         "dob",
				"SEX":         "sex",
				"HOMEKEY":     "homeGroup",
				"HOUSE":       "house",
				"YEAR_LEVEL":  "yearLevel",
				"EMAIL":       "email",
				"TELEPHONE":   "phone",
			},
		},
		StaffFile: {
			Filename:  StaffFile,
			TableName: "SF_8865",
			Columns: []Column{
				{Name: "SFKEY", Start: 0, Width: 10},
				{Name: "SURNAME", Start: 10, Width: 30},
				{Name: "GIVEN_NAMES", Start: 40, Width: 30},
				{Name: "EMAIL", Start: 70, Width: 100},
				{Name: "EMPLOYMENT_TYPE", Start: 170, Width: 2},
				{Name: "ACTIVE_FLAG", Start: 172, Width: 1},
				{Name: "DEPARTMENT", Start: 173, Width: 50},
				{Name: "POSITION", Start: 223, Width: 50},
				{Name: "TELEPHONE", Start: 273, Width: 20},
			},
			FieldMapping: map[string]string{
				"SFKEY":           "staffId",
				"SURNAME":         "surname",
				"GIVEN_NAMES":     "givenNames",
				"EMAIL":           "email",
				"EMPLOYMENT_TYPE": "employmentType",
				"ACTIVE_FLAG":     "activeFlag",
				"DEPARTMENT":      "department",
				"POSITION":        "position",
				"TELEPHONE":       "phone",
			},
		},
		EnrolmentFile: {
			Filename:  EnrolmentFile,
			TableName: "ENROL_8865",
			Columns: []Column{
				{Name: "CASES_KEY", Start: 0, Width: 10},
				{Name: "CLASS_CODE", Start: 10, Width: 20},
				{Name: "SUBJECT", Start: 30, Width: 50},
				{Name: "PERIOD", Start: 80, Width: 10},
				{Name: "TEACHER_KEY", Start: 90, Width: 10},
				{Name: "ROOM", Start: 100, Width: 10},
				{Name: "TERM", Start: 110, Width: 1},
				{Name: "YEAR", Start: 111, Width: 4},
			},
			FieldMapping: map[string]string{
				"CASES_KEY":   "studentId",
				"CLASS_CODE":  "classCode",
				"SUBJECT":     "subject",
				"PERIOD":      "period",
				"TEACHER_KEY": "teacherId",
				"ROOM":        "room",
				"TERM":        "term",
				"YEAR":        "year",
			},
		},
		ParentFile: {
			Filename:  ParentFile,
			TableName: "PARENT_8865",
			Columns: []Column{
				{Name: "PARENT_KEY", Start: 0, Width: 10},
				{Name: "SURNAME", Start: 10, Width: 30},
				{Name: "GIVEN_NAMES", Start: 40, Width: 30},
				{Name: "EMAIL", Start: 70, Width: 100},
				{Name: "TELEPHONE", Start: 170, Width: 20},
				{Name: "RELATIONSHIP", Start: 190, Width: 20},
				{Name: "STUDENT_KEY", Start: 210, Width: 10},
				{Name: "PRIMARY_CONTACT", Start: 220, Width: 1},
			},
			FieldMapping: map[string]string{
				"PARENT_KEY":      "parentId",
				"SURNAME":         "surname",
				"GIVEN_NAMES":     "givenNames",
				"EMAIL":           "email",
				"TELEPHONE":       "phone",
				"RELATIONSHIP":    "relationship",
				"STUDENT_KEY":     "studentId",
				"PRIMARY_CONTACT": "primaryContact",
			},
		},
		// reference files are already in canonical names
		HomeGroupFile: {
			Filename:  HomeGroupFile,
			TableName: "HOMEGRP_8865",
			Columns: []Column{
				{Name: "homeGroupCode", Start: 0, Width: 10},
				{Name: "homeGroupName", Start: 10, Width: 50},
				{Name: "yearLevel", Start: 60, Width: 2},
				{Name: "teacherId", Start: 62, Width: 10},
			},
		},
		HouseFile: {
			Filename:  HouseFile,
			TableName: "HOUSE_8865",
			Columns: []Column{
				{Name: "houseCode", Start: 0, Width: 10},
				{Name: "houseName", Start: 10, Width: 50},
				{Name: "description", Start: 60, Width: 100},
			},
		},
	}
}
