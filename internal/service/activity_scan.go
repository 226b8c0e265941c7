package service

import (
	"context"

	"github.com/noah-isme/activity-audit-api/internal/models"
)

const defaultScanBatch = 500

type activityScanner interface {
	Scan(ctx context.Context, filter models.ActivityFilter, cursor models.ActivityCursor) ([]models.ActivityRecord, error)
}

// scanActivities walks every record matching filter in ascending keyset
// batches. visit runs once per batch; cancellation is checked between batches.
func scanActivities(ctx context.Context, scanner activityScanner, filter models.ActivityFilter, batch int, visit func([]models.ActivityRecord) error) error {
	if batch <= 0 {
		batch = defaultScanBatch
	}
	cursor := models.ActivityCursor{Limit: batch}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := scanner.Scan(ctx, filter, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := visit(page); err != nil {
			return err
		}
		if len(page) < batch {
			return nil
		}
		cursor.Advance(page[len(page)-1])
	}
}

func collectActivities(ctx context.Context, scanner activityScanner, filter models.ActivityFilter, batch int) ([]models.ActivityRecord, error) {
	var out []models.ActivityRecord
	err := scanActivities(ctx, scanner, filter, batch, func(page []models.ActivityRecord) error {
		out = append(out, page...)
		return nil
	})
	return out, err
}

// maxListSample matches the repository's page cap for List.
const maxListSample = 500

type activityLister interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityRecord, error)
}

// sampleActivities reads at most limit of the newest records matching filter
// in one query and returns them oldest first.
func sampleActivities(ctx context.Context, lister activityLister, filter models.ActivityFilter, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 || limit > maxListSample {
		limit = maxListSample
	}
	filter.Limit = limit
	filter.Offset = 0
	page, err := lister.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}
