package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/workstreamd/workstream/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidArgument = errors.New("invalid argument")
var ErrStaleLock = errors.New("lock version has moved")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateRequest(ctx context.Context, req *models.Request) (int64, error)
	GetRequest(ctx context.Context, requestID int64) (*models.Request, error)
	GetRequestByWorkloadID(ctx context.Context, workloadID int64) (*models.Request, error)
	UpdateRequest(ctx context.Context, requestID int64, upd RequestUpdate) error
	ExtendRequest(ctx context.Context, requestID int64, lifetime int) error
	CancelRequest(ctx context.Context, requestID int64) error
	DeleteRequest(ctx context.Context, requestID int64) error

	ClaimRequests(ctx context.Context, filter ClaimFilter) ([]*models.Request, error)
	ReclaimExpiredLocks(ctx context.Context, olderThan time.Duration) (int64, error)

	CreateTransform(ctx context.Context, tf *models.Transform) (int64, error)
	GetTransform(ctx context.Context, transformID int64) (*models.Transform, error)
	UpdateTransform(ctx context.Context, transformID int64, upd TransformUpdate) error
	DeleteTransform(ctx context.Context, transformID int64) error

	CreateCollection(ctx context.Context, coll *models.Collection) (int64, error)
	GetCollection(ctx context.Context, collID int64) (*models.Collection, error)
	GetCollectionByName(ctx context.Context, transformID int64, scope, name string) (*models.Collection, error)
	GetCollectionsByTransform(ctx context.Context, transformID int64) ([]*models.Collection, error)
	UpdateCollection(ctx context.Context, collID int64, upd CollectionUpdate) error
	DeleteCollection(ctx context.Context, collID int64) error

	CreateContent(ctx context.Context, content *models.Content) (int64, error)
	CreateContents(ctx context.Context, contents []*models.Content, returningID bool, bulkSize int) ([]int64, error)
	GetContentID(ctx context.Context, key ContentKey) (int64, error)
	GetContent(ctx context.Context, contentID int64) (*models.Content, error)
	GetContentByKey(ctx context.Context, key ContentKey) (*models.Content, error)
	GetMatchContents(ctx context.Context, key ContentKey) ([]*models.Content, error)
	GetContents(ctx context.Context, filter ContentFilter) ([]*models.Content, error)
	UpdateContent(ctx context.Context, contentID int64, upd ContentUpdate) error
	UpdateContentsStatus(ctx context.Context, updates []ContentStatusUpdate) error
	DeleteContent(ctx context.Context, contentID int64) error
	CountContentsByStatus(ctx context.Context, collID *int64) (map[models.ContentStatus]int64, error)

	CommitTransforms(ctx context.Context, requestID int64, upd RequestUpdate, toAdd []TransformCommit, toExtend []TransformExtension) error
}

// ClaimFilter selects which Requests a worker may claim.
type ClaimFilter struct {
	Statuses    []models.RequestStatus
	RequestType *models.RequestType
	// OlderThan restricts the match to rows last updated more than this long
	// ago. Zero means no age restriction.
	OlderThan time.Duration
	// Lock marks every matched row as Locking inside the same transaction,
	// stamping LockedBy as the claimant.
	Lock     bool
	LockedBy uuid.UUID
	BulkSize int
}

// RequestUpdate is a partial update of a Request. Nil fields are left
// untouched; a non-nil metadata pointer to a nil map clears the column.
type RequestUpdate struct {
	Status             *models.RequestStatus
	Locking            *models.RequestLocking
	Priority           *int
	WorkloadID         *int64
	RequestMetadata    *models.Metadata
	ProcessingMetadata *models.Metadata
	// IfLockVersion makes the update conditional on the lock_version the
	// caller observed when it claimed the Request. A mismatch means the
	// lease expired and another worker re-claimed it; the update fails with
	// ErrStaleLock instead of overwriting that worker's progress.
	IfLockVersion *int64
}

// TransformUpdate is a partial update of a Transform.
type TransformUpdate struct {
	Status            *models.TransformStatus
	Retries           *int
	TransformMetadata *models.Metadata
}

// CollectionUpdate is a partial update of a Collection.
type CollectionUpdate struct {
	Status       *models.CollectionStatus
	TotalFiles   *int64
	Bytes        *int64
	CollMetadata *models.Metadata
}

// ContentUpdate is a partial update of a Content.
type ContentUpdate struct {
	Status          *models.ContentStatus
	Bytes           *int64
	Retries         *int
	Path            *string
	ContentMetadata *models.Metadata
}

// ContentKey identifies a Content within its Collection. The File type is
// unranged: MinID/MaxID take no part in the match.
type ContentKey struct {
	CollID      int64
	Scope       string
	Name        string
	ContentType models.ContentType
	MinID       int64
	MaxID       int64
}

// Ranged reports whether the key's range bounds are part of its identity.
func (k ContentKey) Ranged() bool {
	return k.ContentType != models.ContentTypeFile
}

// ContentFilter selects Contents by scope/name pattern, collection and
// status. At least one of scope+name, CollID or Statuses must be set.
type ContentFilter struct {
	Scope    string
	Name     string
	CollID   *int64
	Statuses []models.ContentStatus
}

// ContentStatusUpdate moves one Content to a new status (and optionally a new
// path), addressed either by content id or by its identity key.
type ContentStatusUpdate struct {
	ContentID *int64
	Key       *ContentKey
	Status    models.ContentStatus
	Path      *string
}

// TransformCommit is one new Transform plus the Collections committed with
// it. Output Collections receive derivation metadata linking them to the
// sibling input/log Collections and the owning workload.
type TransformCommit struct {
	Transform         models.Transform
	InputCollections  []models.Collection
	OutputCollections []models.Collection
	LogCollections    []models.Collection
}

// TransformExtension applies a partial update to an already-existing Transform.
type TransformExtension struct {
	TransformID int64
	Update      TransformUpdate
}
