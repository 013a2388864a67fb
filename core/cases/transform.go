package cases

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/volatiletech/null/v8"

	"github.com/staffhub/backend/core"
)

// plausible school years and student ages
const (
	minYearLevel = 7
	maxYearLevel = 12
	minAge       = 12
	maxAge       = 18
	ageOffset    = 5 // year level ~ age - 5
)

// Mapper converts mapped fields to canonical records.
type Mapper struct {
	now func() time.Time
}

// NewMapper returns a Mapper using the given clock (time.Now when nil).
func NewMapper(now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{now: now}
}

func (m *Mapper) Student(f Fields) Student {
	dob := ParseDate(f["dob"])
	return Student{
		CasesID:     core.CleanString(f["studentId"]),
		FirstName:   core.CleanString(f["givenNames"]),
		LastName:    core.CleanString(f["surname"]),
		DateOfBirth: dob,
		Sex:         ParseSex(f["sex"]),
		YearLevel:   DeriveYearLevel(f["yearLevel"], f["homeGroup"], f["dob"], m.now()),
		HomeGroup:   nullString(f["homeGroup"]),
		House:       nullString(f["house"]),
		Email:       nullEmail(f["email"]),
		Phone:       nullString(f["phone"]),
		Active:      true,
	}
}

func (m *Mapper) Staff(f Fields) Staff {
	return Staff{
		CasesID:        core.CleanString(f["staffId"]),
		FirstName:      nullString(f["givenNames"]),
		LastName:       core.CleanString(f["surname"]),
		Email:          nullEmail(f["email"]),
		EmploymentType: nullString(f["employmentType"]),
		Department:     nullString(f["department"]),
		Position:       nullString(f["position"]),
		Phone:          nullString(f["phone"]),
		Active:         ParseFlag(f["activeFlag"]),
	}
}

func (m *Mapper) Enrolment(f Fields) Enrolment {
	year, ok := leadingInt(f["year"])
	if !ok {
		year = m.now().Year()
	}
	var term null.Int
	if t, ok := leadingInt(f["term"]); ok {
		term = null.IntFrom(t)
	}
	return Enrolment{
		StudentCasesID: core.CleanString(f["studentId"]),
		ClassCode:      core.CleanString(f["classCode"]),
		Subject:        nullString(f["subject"]),
		Period:         nullString(f["period"]),
		TeacherCasesID: nullString(f["teacherId"]),
		Room:           nullString(f["room"]),
		Term:           term,
		Year:           year,
	}
}

func (m *Mapper) Parent(f Fields) Parent {
	return Parent{
		CasesID:          core.CleanString(f["parentId"]),
		FirstName:        nullString(f["givenNames"]),
		LastName:         nullString(f["surname"]),
		Email:            nullEmail(f["email"]),
		Phone:            nullString(f["phone"]),
		Relationship:     nullString(f["relationship"]),
		StudentCasesID:   core.CleanString(f["studentId"]),
		IsPrimaryContact: ParseFlag(f["primaryContact"]),
	}
}

func (m *Mapper) HomeGroup(f Fields) HomeGroup {
	var yearLevel null.Int
	if y, ok := leadingInt(f["yearLevel"]); ok {
		yearLevel = null.IntFrom(y)
	}
	return HomeGroup{
		Code:      core.CleanString(f["homeGroupCode"]),
		Name:      nullString(f["homeGroupName"]),
		YearLevel: yearLevel,
		TeacherID: nullString(f["teacherId"]),
	}
}

func (m *Mapper) House(f Fields) House {
	return House{
		Code:        core.CleanString(f["houseCode"]),
		Name:        nullString(f["houseName"]),
		Description: nullString(f["description"]),
	}
}

// ParseDate reads a YYYYMMDD date. Anything else, including impossible calendar dates, is null.
func ParseDate(s string) null.Time {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return null.Time{}
	}
	year, err1 := strconv.Atoi(s[:4])
	month, err2 := strconv.Atoi(s[4:6])
	day, err3 := strconv.Atoi(s[6:])
	if err1 != nil || err2 != nil || err3 != nil {
		return null.Time{}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return null.Time{}
	}
	return null.TimeFrom(t)
}

// ParseSex maps M and F, anything else is null.
func ParseSex(s string) null.String {
	switch strings.TrimSpace(s) {
	case "M":
		return null.StringFrom(SexMale)
	case "F":
		return null.StringFrom(SexFemale)
	}
	return null.String{}
}

// ParseFlag is true for Y or 1.
func ParseFlag(s string) bool {
	s = strings.TrimSpace(s)
	return s == "Y" || s == "1"
}

// DeriveYearLevel returns the first plausible year level (7 to 12) from, in order:
// the year level field, the leading digits of the home group code, the age in the current year
// minus 5. The age rule is a best-effort estimate only and can be a year off.
func DeriveYearLevel(yearLevel, homeGroup, dob string, now time.Time) null.Int {
	if y, ok := leadingInt(yearLevel); ok && inYearRange(y) {
		return null.IntFrom(y)
	}

	if hg := strings.TrimSpace(homeGroup); hg != "" {
		digits := leadingDigits(hg)
		if len(digits) > 2 {
			digits = digits[:2]
		}
		if y, err := strconv.Atoi(digits); err == nil && inYearRange(y) {
			return null.IntFrom(y)
		}
	}

	if dob = strings.TrimSpace(dob); len(dob) == 8 {
		if birthYear, ok := leadingInt(dob[:4]); ok {
			age := now.Year() - birthYear
			if age >= minAge && age <= maxAge {
				if y := age - ageOffset; inYearRange(y) {
					return null.IntFrom(y)
				}
			}
		}
	}
	return null.Int{}
}

func inYearRange(y int) bool {
	return y >= minYearLevel && y <= maxYearLevel
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	return s[:end]
}

// leadingInt parses the leading digits of s ("10B" is 10).
func leadingInt(s string) (int, bool) {
	digits := leadingDigits(strings.TrimSpace(s))
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

func nullString(s string) null.String {
	if s = core.CleanString(s); s != "" {
		return null.StringFrom(s)
	}
	return null.String{}
}

func nullEmail(s string) null.String {
	if s = core.CleanString(s, true); s != "" {
		return null.StringFrom(s)
	}
	return null.String{}
}
