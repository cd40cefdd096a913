package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle status of a Request, stored as an integer.
type RequestStatus int

const (
	RequestStatusNew RequestStatus = iota + 1
	RequestStatusTransforming
	RequestStatusFinished
	RequestStatusSubFinished
	RequestStatusFailed
	RequestStatusCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusNew:
		return "New"
	case RequestStatusTransforming:
		return "Transforming"
	case RequestStatusFinished:
		return "Finished"
	case RequestStatusSubFinished:
		return "SubFinished"
	case RequestStatusFailed:
		return "Failed"
	case RequestStatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// RequestLocking marks whether a worker currently holds the claim on a Request.
type RequestLocking int

const (
	RequestLockingIdle RequestLocking = iota
	RequestLockingLocking
)

func (l RequestLocking) String() string {
	if l == RequestLockingLocking {
		return "Locking"
	}
	return "Idle"
}

// RequestType categorizes what kind of workflow a Request asks for.
type RequestType int

const (
	RequestTypeGeneric RequestType = iota
	RequestTypeEventStream
	RequestTypeDerivation
)

func (t RequestType) String() string {
	switch t {
	case RequestTypeEventStream:
		return "EventStream"
	case RequestTypeDerivation:
		return "Derivation"
	}
	return "Generic"
}

// Metadata is a free-form JSON document attached to an entity. A nil map is
// persisted as SQL NULL, not as an empty object.
type Metadata map[string]any

// Request is the top-level unit of work submitted by an external requester.
// Transforms belong to a Request by convention (recorded in metadata), not by
// a schema-level foreign key.
type Request struct {
	RequestID          int64          `db:"request_id"          json:"request_id"`
	Scope              string         `db:"scope"               json:"scope"`
	Name               string         `db:"name"                json:"name"`
	Requester          string         `db:"requester"           json:"requester"`
	RequestType        RequestType    `db:"request_type"        json:"request_type"`
	TransformTag       string         `db:"transform_tag"       json:"transform_tag"`
	Status             RequestStatus  `db:"status"              json:"status"`
	Locking            RequestLocking `db:"locking"             json:"locking"`
	Priority           int            `db:"priority"            json:"priority"`
	Lifetime           int            `db:"lifetime"            json:"lifetime"`
	WorkloadID         *int64         `db:"workload_id"         json:"workload_id,omitempty"`
	RequestMetadata    Metadata       `db:"request_metadata"    json:"request_metadata,omitempty"`
	ProcessingMetadata Metadata       `db:"processing_metadata" json:"processing_metadata,omitempty"`
	LockedBy           *uuid.UUID     `db:"locked_by"           json:"locked_by,omitempty"`
	LockedAt           *time.Time     `db:"locked_at"           json:"locked_at,omitempty"`
	LockVersion        int64          `db:"lock_version"        json:"lock_version"`
	ExpiredAt          *time.Time     `db:"expired_at"          json:"expired_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"          json:"updated_at"`
}
