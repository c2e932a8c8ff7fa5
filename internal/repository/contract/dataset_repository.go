package contract

import (
	"context"

	"csvlens-be/internal/entity"

	"github.com/google/uuid"
)

// CellEditor identifies who performed a collaborative cell edit, for the audit
// trail.
type CellEditor struct {
	UserID uuid.UUID
	Name   string
}

type DatasetRepository interface {
	Create(ctx context.Context, dataset *entity.Dataset) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.Dataset, error)
	Save(ctx context.Context, dataset *entity.Dataset) error

	// UpdateCellValue writes a committed cell edit: mutates the rows jsonb and
	// appends a versioned DatasetCellEdit audit row in one transaction.
	UpdateCellValue(ctx context.Context, datasetId uuid.UUID, cellId string, rowIndex int, column, value, oldValue string, editor CellEditor) error
	FindCellEdits(ctx context.Context, datasetId uuid.UUID, cellId string) ([]*entity.DatasetCellEdit, error)

	AddCellComment(ctx context.Context, comment *entity.DatasetComment) error
	AddCommentReply(ctx context.Context, reply *entity.DatasetCommentReply) error
	ResolveComment(ctx context.Context, commentId uuid.UUID, resolved bool) error
	FindComments(ctx context.Context, datasetId uuid.UUID) ([]*entity.DatasetComment, error)
}
