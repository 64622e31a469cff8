// Package store defines where completed runs are persisted.
package store

import (
	"context"

	"github.com/kass/building-limits/pkg/models"
)

// Store persists the inputs and results of a run.
type Store interface {
	SaveRun(ctx context.Context, run *models.Run) error
	Close() error
}
