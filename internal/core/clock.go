package core

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so orchestrator logic is deterministic
// in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts correlation-ID generation. Catalog primary keys
// are monotonic integers assigned by SQLite; this is used only for the
// per-invocation correlation ID that app.New stamps on every log line of
// one CLI command.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
