// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
)

type LogEntry struct {
	Level string
	Msg   string
}

// Logger records log entries in memory.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return new(Logger) }

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

// Messages returns the messages logged at level.
func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, 0)
	for _, e := range l.entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

// Line renders one fixed-width line of filename, using its default layout.
// values are keyed by column name; missing columns are blank.
func Line(t *testing.T, filename string, values map[string]string) string {
	t.Helper()
	layout, ok := cases.DefaultLayouts()[filename]
	if !ok {
		t.Fatalf("Line(): no default layout for %s", filename)
	}

	var width int
	for _, col := range layout.Columns {
		if end := col.Start + col.Width; end > width {
			width = end
		}
	}
	line := []rune(strings.Repeat(" ", width))
	for _, col := range layout.Columns {
		v := []rune(values[col.Name])
		if len(v) > col.Width {
			t.Fatalf("Line(): value %q too wide for column %s", string(v), col.Name)
		}
		copy(line[col.Start:], v)
	}
	return strings.TrimRight(string(line), " ")
}

// File joins lines into the content of a CASES file.
func File(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func StudentLine(t *testing.T, id, surname, givenNames string) string {
	return Line(t, cases.StudentFile, map[string]string{
		"CASES_KEY": id, "SURNAME": surname, "GIVEN_NAMES": givenNames,
		"DOB": "20100315", "SEX": "F", "HOMEKEY": "9A", "YEAR_LEVEL": "9",
	})
}

func StaffLine(t *testing.T, id, surname, email string) string {
	return Line(t, cases.StaffFile, map[string]string{
		"SFKEY": id, "SURNAME": surname, "GIVEN_NAMES": "Sam", "EMAIL": email, "ACTIVE_FLAG": "Y",
	})
}

func EnrolmentLine(t *testing.T, studentID, classCode string) string {
	return Line(t, cases.EnrolmentFile, map[string]string{
		"CASES_KEY": studentID, "CLASS_CODE": classCode, "SUBJECT": "Maths", "TERM": "1", "YEAR": "2026",
	})
}

func ParentLine(t *testing.T, id, studentID string) string {
	return Line(t, cases.ParentFile, map[string]string{
		"PARENT_KEY": id, "SURNAME": "Parent", "GIVEN_NAMES": "Pat", "STUDENT_KEY": studentID, "PRIMARY_CONTACT": "Y",
	})
}

// WriteExport writes a CASES export into a new temp dir and returns it.
func WriteExport(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteExport(): %v", err)
		}
	}
	return dir
}

// ValidExport is a small export with every required file.
func ValidExport(t *testing.T) map[string]string {
	return map[string]string{
		cases.StudentFile: File(
			StudentLine(t, "S001", "Nguyen", "Anh"),
			StudentLine(t, "S002", "Smith", "Jo"),
		),
		cases.StaffFile:     File(StaffLine(t, "T001", "Brown", "t.brown@school.example")),
		cases.EnrolmentFile: File(EnrolmentLine(t, "S001", "9MAT1"), EnrolmentLine(t, "S002", "9MAT1")),
		cases.ParentFile:    File(ParentLine(t, "P001", "S001")),
	}
}
