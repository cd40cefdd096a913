package models

import "time"

// TransformStatus is the lifecycle status of a Transform, stored as an integer.
type TransformStatus int

const (
	TransformStatusNew TransformStatus = iota + 1
	TransformStatusTransforming
	TransformStatusFinished
	TransformStatusFailed
	TransformStatusCancelled
)

func (s TransformStatus) String() string {
	switch s {
	case TransformStatusNew:
		return "New"
	case TransformStatusTransforming:
		return "Transforming"
	case TransformStatusFinished:
		return "Finished"
	case TransformStatusFailed:
		return "Failed"
	case TransformStatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// Transform is one processing step of a Request. It is never created without
// at least one Collection; the commit protocol enforces that. The owning
// workload id, when known, travels in TransformMetadata under "workload_id".
type Transform struct {
	TransformID       int64           `db:"transform_id"       json:"transform_id"`
	TransformTag      string          `db:"transform_tag"      json:"transform_tag"`
	Status            TransformStatus `db:"status"             json:"status"`
	Retries           int             `db:"retries"            json:"retries"`
	TransformMetadata Metadata        `db:"transform_metadata" json:"transform_metadata,omitempty"`
	ExpiredAt         *time.Time      `db:"expired_at"         json:"expired_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"         json:"updated_at"`
}
