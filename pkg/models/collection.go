package models

import "time"

// CollectionStatus is the lifecycle status of a Collection, stored as an integer.
type CollectionStatus int

const (
	CollectionStatusNew CollectionStatus = iota + 1
	CollectionStatusUpdated
	CollectionStatusProcessing
	CollectionStatusClosed
	CollectionStatusDeleted
)

func (s CollectionStatus) String() string {
	switch s {
	case CollectionStatusNew:
		return "New"
	case CollectionStatusUpdated:
		return "Updated"
	case CollectionStatusProcessing:
		return "Processing"
	case CollectionStatusClosed:
		return "Closed"
	case CollectionStatusDeleted:
		return "Deleted"
	}
	return "Unknown"
}

// CollectionRelation tags the role a Collection plays for its Transform.
// The role is decided by the caller at commit time and is not persisted as a
// column; an output Collection instead records its input/log siblings in
// CollMetadata.
type CollectionRelation int

const (
	CollectionRelationInput CollectionRelation = iota
	CollectionRelationOutput
	CollectionRelationLog
)

func (r CollectionRelation) String() string {
	switch r {
	case CollectionRelationOutput:
		return "Output"
	case CollectionRelationLog:
		return "Log"
	}
	return "Input"
}

// Collection is a named, scoped dataset bound to exactly one Transform.
type Collection struct {
	CollID       int64            `db:"coll_id"       json:"coll_id"`
	TransformID  int64            `db:"transform_id"  json:"transform_id"`
	Scope        string           `db:"scope"         json:"scope"`
	Name         string           `db:"name"          json:"name"`
	Status       CollectionStatus `db:"status"        json:"status"`
	TotalFiles   int64            `db:"total_files"   json:"total_files"`
	Bytes        int64            `db:"bytes"         json:"bytes"`
	CollMetadata Metadata         `db:"coll_metadata" json:"coll_metadata,omitempty"`
	CreatedAt    time.Time        `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"    json:"updated_at"`
}
