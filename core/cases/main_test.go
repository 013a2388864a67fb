package cases

import (
	"sync"

	"github.com/staffhub/backend/core"
)

// testLogger records warnings, other levels are dropped.
type testLogger struct {
	mu    sync.Mutex
	warns []string
}

var _ core.Logger = (*testLogger)(nil)

func (l *testLogger) Debug(string, ...interface{}) {}
func (l *testLogger) Info(string, ...interface{})  {}
func (l *testLogger) Error(string, ...interface{}) {}
func (l *testLogger) Fatal(string, ...interface{}) {}

func (l *testLogger) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *testLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}
