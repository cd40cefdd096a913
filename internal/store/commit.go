package store

import (
	"context"
	"fmt"

	"github.com/workstreamd/workstream/pkg/models"
)

// CommitTransforms materializes newly discovered Transforms with their full
// Collection graph and extends already-known ones, all against one Request
// and inside one transaction. Any failure rolls back every insert and update
// of the call, including rows written for earlier transforms in the batch.
//
// For each transform to add, the input and log Collections are inserted
// first; every output Collection is then stamped with metadata recording the
// owning transform id, the workload id (taken from the transform's own
// metadata when present) and the ids of the sibling input/log Collections,
// so the derivation is reconstructible without a relationship table.
func (s *PostgresStore) CommitTransforms(ctx context.Context, requestID int64, upd RequestUpdate, toAdd []TransformCommit, toExtend []TransformExtension) error {
	// Validate the whole batch before touching the database.
	for _, tc := range toAdd {
		if len(tc.InputCollections)+len(tc.OutputCollections)+len(tc.LogCollections) == 0 {
			return fmt.Errorf("transform %q must have input, output or log collections: %w",
				tc.Transform.TransformTag, ErrInvalidArgument)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tc := range toAdd {
		transformID, err := createTransform(ctx, tx, &tc.Transform)
		if err != nil {
			return err
		}

		inputIDs := make([]int64, 0, len(tc.InputCollections))
		for _, coll := range tc.InputCollections {
			coll.TransformID = transformID
			id, err := createCollection(ctx, tx, &coll)
			if err != nil {
				return err
			}
			inputIDs = append(inputIDs, id)
		}

		logIDs := make([]int64, 0, len(tc.LogCollections))
		for _, coll := range tc.LogCollections {
			coll.TransformID = transformID
			id, err := createCollection(ctx, tx, &coll)
			if err != nil {
				return err
			}
			logIDs = append(logIDs, id)
		}

		for _, coll := range tc.OutputCollections {
			coll.TransformID = transformID
			meta := models.Metadata{
				"transform_id":      transformID,
				"input_collections": inputIDs,
				"log_collections":   logIDs,
			}
			if workloadID, ok := metadataInt64(tc.Transform.TransformMetadata, "workload_id"); ok {
				meta["workload_id"] = workloadID
			}
			coll.CollMetadata = meta
			if _, err := createCollection(ctx, tx, &coll); err != nil {
				return err
			}
		}
	}

	for _, ext := range toExtend {
		if err := updateTransform(ctx, tx, ext.TransformID, ext.Update); err != nil {
			return err
		}
	}

	if err := updateRequest(ctx, tx, requestID, upd); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transforms: %w", err)
	}
	return nil
}
