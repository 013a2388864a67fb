package cases

// CASES export filenames.
const (
	StudentFile   = "STUDENT.DAT"
	EnrolmentFile = "ENROL.DAT"
	StaffFile     = "STAFF.DAT"
	ParentFile    = "PARENT.DAT"
	HomeGroupFile = "HOMEGRP.DAT"
	HouseFile     = "HOUSE.DAT"
	AbsenceFile   = "ABSENCE.DAT"
)

// FileDef describes one file of a CASES export.
type FileDef struct {
	Filename    string
	Description string
	Required    bool
}

// Catalogue is the list of files expected in a CASES export directory.
type Catalogue []FileDef

// DefaultCatalogue is the nightly CASES export.
var DefaultCatalogue = Catalogue{
	{Filename: StudentFile, Description: "Student demographic records", Required: true},
	{Filename: EnrolmentFile, Description: "Student enrolment records per period", Required: true},
	{Filename: StaffFile, Description: "Staff demographic records", Required: true},
	{Filename: ParentFile, Description: "Parent demographic records", Required: true},
	{Filename: HomeGroupFile, Description: "Home group definitions"},
	{Filename: HouseFile, Description: "House definitions"},
	{Filename: AbsenceFile, Description: "Student absence records"},
}

func (c Catalogue) Get(filename string) (FileDef, bool) {
	for _, def := range c {
		if def.Filename == filename {
			return def, true
		}
	}
	return FileDef{}, false
}

func (c Catalogue) Required() []string {
	names := make([]string, 0, len(c))
	for _, def := range c {
		if def.Required {
			names = append(names, def.Filename)
		}
	}
	return names
}
