package cases

import (
	"fmt"
	"strconv"

	"github.com/volatiletech/null/v8"
)

// Entity names a kind of canonical record (and its table).
type Entity string

const (
	EntityStudent   Entity = "students"
	EntityStaff     Entity = "staff"
	EntityEnrolment Entity = "enrolments"
	EntityParent    Entity = "parents"
	EntityHomeGroup Entity = "home_groups"
	EntityHouse     Entity = "houses"
)

// Label is the tag used in run errors, e.g. "Students: ...".
func (e Entity) Label() string {
	switch e {
	case EntityStudent:
		return "Students"
	case EntityStaff:
		return "Staff"
	case EntityEnrolment:
		return "Enrolments"
	case EntityParent:
		return "Parents"
	case EntityHomeGroup:
		return "Home groups"
	case EntityHouse:
		return "Houses"
	}
	return string(e)
}

const (
	SexMale   = "MALE"
	SexFemale = "FEMALE"
)

// Record is a canonical record keyed by its CASES identity.
type Record interface {
	Entity() Entity
	ExternalID() string
}

type Student struct {
	CasesID     string      `db:"cases_id" json:"cases_id"`
	FirstName   string      `db:"first_name" json:"first_name"`
	LastName    string      `db:"last_name" json:"last_name"`
	DateOfBirth null.Time   `db:"date_of_birth" json:"date_of_birth"`
	Sex         null.String `db:"sex" json:"sex"`
	YearLevel   null.Int    `db:"year_level" json:"year_level"` // best-effort estimate, see DeriveYearLevel
	HomeGroup   null.String `db:"home_group" json:"home_group"`
	House       null.String `db:"house" json:"house"`
	Email       null.String `db:"email" json:"email"`
	Phone       null.String `db:"phone" json:"phone"`
	Active      bool        `db:"active" json:"active"`
}

type Staff struct {
	CasesID        string      `db:"cases_id" json:"cases_id"`
	FirstName      null.String `db:"first_name" json:"first_name"`
	LastName       string      `db:"last_name" json:"last_name"`
	Email          null.String `db:"email" json:"email"`
	EmploymentType null.String `db:"employment_type" json:"employment_type"`
	Department     null.String `db:"department" json:"department"`
	Position       null.String `db:"position" json:"position"`
	Phone          null.String `db:"phone" json:"phone"`
	Active         bool        `db:"active" json:"active"`
}

type Enrolment struct {
	StudentCasesID string      `db:"student_cases_id" json:"student_cases_id"`
	ClassCode      string      `db:"class_code" json:"class_code"`
	Subject        null.String `db:"subject" json:"subject"`
	Period         null.String `db:"period" json:"period"`
	TeacherCasesID null.String `db:"teacher_cases_id" json:"teacher_cases_id"`
	Room           null.String `db:"room" json:"room"`
	Term           null.Int    `db:"term" json:"term"`
	Year           int         `db:"year" json:"year"`
}

type Parent struct {
	CasesID          string      `db:"cases_id" json:"cases_id"`
	FirstName        null.String `db:"first_name" json:"first_name"`
	LastName         null.String `db:"last_name" json:"last_name"`
	Email            null.String `db:"email" json:"email"`
	Phone            null.String `db:"phone" json:"phone"`
	Relationship     null.String `db:"relationship" json:"relationship"`
	StudentCasesID   string      `db:"student_cases_id" json:"student_cases_id"`
	IsPrimaryContact bool        `db:"is_primary_contact" json:"is_primary_contact"`
}

type HomeGroup struct {
	Code      string      `db:"code" json:"code"`
	Name      null.String `db:"name" json:"name"`
	YearLevel null.Int    `db:"year_level" json:"year_level"`
	TeacherID null.String `db:"teacher_id" json:"teacher_id"`
}

type House struct {
	Code        string      `db:"code" json:"code"`
	Name        null.String `db:"name" json:"name"`
	Description null.String `db:"description" json:"description"`
}

func (Student) Entity() Entity   { return EntityStudent }
func (Staff) Entity() Entity     { return EntityStaff }
func (Enrolment) Entity() Entity { return EntityEnrolment }
func (Parent) Entity() Entity    { return EntityParent }
func (HomeGroup) Entity() Entity { return EntityHomeGroup }
func (House) Entity() Entity     { return EntityHouse }

func (s Student) ExternalID() string { return s.CasesID }
func (s Staff) ExternalID() string   { return s.CasesID }
func (p Parent) ExternalID() string  { return p.CasesID }
func (h HomeGroup) ExternalID() string {
	return h.Code
}
func (h House) ExternalID() string { return h.Code }

// ExternalID of an enrolment is "studentId|classCode|year|term" (term empty when unknown).
func (e Enrolment) ExternalID() string {
	term := ""
	if e.Term.Valid {
		term = strconv.Itoa(e.Term.Int)
	}
	return fmt.Sprintf("%s|%s|%d|%s", e.StudentCasesID, e.ClassCode, e.Year, term)
}

var (
	_ Record = Student{}
	_ Record = Staff{}
	_ Record = Enrolment{}
	_ Record = Parent{}
	_ Record = HomeGroup{}
	_ Record = House{}
)
