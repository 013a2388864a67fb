package locksvc

import (
	"context"
	"sync"
)

// Local is an in-process lock, enough when a single process runs the ETL.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return new(Local) }

func (l *Local) Acquire(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}
