package connector

import "time"

// Role selects which side of a read/write-split cluster a Connector talks
// to.
type Role int

const (
	RoleRead Role = iota
	RoleWrite
)

func (r Role) String() string {
	if r == RoleWrite {
		return "write"
	}
	return "read"
}

// Status tracks whether a Connector is checked out by a task or sitting
// idle in the Pool.
type Status int

const (
	StatusIdle Status = iota
	StatusBusy
)

// Info is the 1:1 bookkeeping record the Pool attaches to every Connector
// it mints. It never outlives the Connector it describes.
type Info struct {
	Role     Role
	Status   Status
	PushTime time.Time // last time it was returned to the pool
	PopTime  time.Time // last time it was handed to a task
}

// NewInfo creates bookkeeping for a freshly created connector.
func NewInfo(role Role) *Info {
	now := time.Now()
	return &Info{
		Role:     role,
		Status:   StatusIdle,
		PushTime: now,
	}
}

// MarkBusy records a checkout.
func (i *Info) MarkBusy() {
	i.Status = StatusBusy
	i.PopTime = time.Now()
}

// MarkIdle records a return to the pool.
func (i *Info) MarkIdle() {
	i.Status = StatusIdle
	i.PushTime = time.Now()
}
