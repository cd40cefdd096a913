package models

import "time"

// ContentType distinguishes how a Content addresses its data. File is the
// unranged case: min_id/max_id take no part in its identity.
type ContentType int

const (
	ContentTypeFile ContentType = iota
	ContentTypeEvent
	ContentTypePointer
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeEvent:
		return "Event"
	case ContentTypePointer:
		return "Pointer"
	}
	return "File"
}

// ContentStatus is the processing status of a Content, stored as an integer.
type ContentStatus int

const (
	ContentStatusNew ContentStatus = iota
	ContentStatusProcessing
	ContentStatusAvailable
	ContentStatusFailed
	ContentStatusLost
	ContentStatusDeleted
)

func (s ContentStatus) String() string {
	switch s {
	case ContentStatusProcessing:
		return "Processing"
	case ContentStatusAvailable:
		return "Available"
	case ContentStatusFailed:
		return "Failed"
	case ContentStatusLost:
		return "Lost"
	case ContentStatusDeleted:
		return "Deleted"
	}
	return "New"
}

// Content is the finest-grained addressable unit within a Collection.
// Its identity key is (coll_id, scope, name, content_type, min_id, max_id);
// min_id/max_id split one logical name into contiguous sub-ranges. The
// backend enforces uniqueness on that key.
type Content struct {
	ContentID       int64         `db:"content_id"       json:"content_id"`
	CollID          int64         `db:"coll_id"          json:"coll_id"`
	Scope           string        `db:"scope"            json:"scope"`
	Name            string        `db:"name"             json:"name"`
	MinID           int64         `db:"min_id"           json:"min_id"`
	MaxID           int64         `db:"max_id"           json:"max_id"`
	ContentType     ContentType   `db:"content_type"     json:"content_type"`
	Status          ContentStatus `db:"status"           json:"status"`
	Bytes           int64         `db:"bytes"            json:"bytes"`
	MD5             *string       `db:"md5"              json:"md5,omitempty"`
	Adler32         *string       `db:"adler32"          json:"adler32,omitempty"`
	ProcessingID    *int64        `db:"processing_id"    json:"processing_id,omitempty"`
	StorageID       *int64        `db:"storage_id"       json:"storage_id,omitempty"`
	Retries         int           `db:"retries"          json:"retries"`
	Path            *string       `db:"path"             json:"path,omitempty"`
	ExpiredAt       *time.Time    `db:"expired_at"       json:"expired_at,omitempty"`
	ContentMetadata Metadata      `db:"content_metadata" json:"content_metadata,omitempty"`
	CreatedAt       time.Time     `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"       json:"updated_at"`
}
