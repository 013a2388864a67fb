// Package locksvc guarantees that a single ETL run is active at a time.
package locksvc

import "github.com/pkg/errors"

// ErrLocked is returned by Acquire when another run holds the lock.
var ErrLocked = errors.New("another ETL run is already in progress")
