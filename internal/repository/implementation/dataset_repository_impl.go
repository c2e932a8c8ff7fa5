package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"csvlens-be/internal/entity"
	"csvlens-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrCellOutOfRange  = errors.New("cell reference out of range")
)

type DatasetRepositoryImpl struct {
	db *gorm.DB
}

func NewDatasetRepository(db *gorm.DB) contract.DatasetRepository {
	return &DatasetRepositoryImpl{db: db}
}

func (r *DatasetRepositoryImpl) Create(ctx context.Context, dataset *entity.Dataset) error {
	if dataset.Id == uuid.Nil {
		dataset.Id = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dataset).Error
}

func (r *DatasetRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Dataset, error) {
	var dataset entity.Dataset
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&dataset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	return &dataset, nil
}

func (r *DatasetRepositoryImpl) Save(ctx context.Context, dataset *entity.Dataset) error {
	now := time.Now()
	dataset.UpdatedAt = &now
	return r.db.WithContext(ctx).Save(dataset).Error
}

func (r *DatasetRepositoryImpl) UpdateCellValue(ctx context.Context, datasetId uuid.UUID, cellId string, rowIndex int, column, value, oldValue string, editor contract.CellEditor) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dataset entity.Dataset
		if err := tx.Where("id = ? AND is_deleted = ?", datasetId, false).First(&dataset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDatasetNotFound
			}
			return err
		}

		var rows []map[string]interface{}
		if len(dataset.Rows) > 0 {
			if err := json.Unmarshal(dataset.Rows, &rows); err != nil {
				return fmt.Errorf("corrupt rows payload for dataset %s: %w", datasetId, err)
			}
		}
		if rowIndex < 0 || rowIndex >= len(rows) {
			return ErrCellOutOfRange
		}
		rows[rowIndex][column] = value

		rawRows, err := json.Marshal(rows)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&entity.Dataset{}).Where("id = ?", datasetId).
			Updates(map[string]interface{}{"rows": datatypes.JSON(rawRows), "updated_at": now}).Error; err != nil {
			return err
		}

		// Version = number of prior edits for this cell + 1.
		var prior int64
		if err := tx.Model(&entity.DatasetCellEdit{}).
			Where("dataset_id = ? AND cell_id = ?", datasetId, cellId).
			Count(&prior).Error; err != nil {
			return err
		}

		audit := entity.DatasetCellEdit{
			Id:           uuid.New(),
			DatasetId:    datasetId,
			CellId:       cellId,
			RowIndex:     rowIndex,
			Column:       column,
			OldValue:     oldValue,
			NewValue:     value,
			Version:      int(prior) + 1,
			EditedBy:     editor.UserID,
			EditedByName: editor.Name,
			CreatedAt:    now,
		}
		return tx.Create(&audit).Error
	})
}

func (r *DatasetRepositoryImpl) FindCellEdits(ctx context.Context, datasetId uuid.UUID, cellId string) ([]*entity.DatasetCellEdit, error) {
	var edits []*entity.DatasetCellEdit
	query := r.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if cellId != "" {
		query = query.Where("cell_id = ?", cellId)
	}
	if err := query.Order("created_at ASC").Find(&edits).Error; err != nil {
		return nil, err
	}
	return edits, nil
}

func (r *DatasetRepositoryImpl) AddCellComment(ctx context.Context, comment *entity.DatasetComment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.Dataset{}).
			Where("id = ? AND is_deleted = ?", comment.DatasetId, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrDatasetNotFound
		}
		if comment.Id == uuid.Nil {
			comment.Id = uuid.New()
		}
		return tx.Create(comment).Error
	})
}

func (r *DatasetRepositoryImpl) AddCommentReply(ctx context.Context, reply *entity.DatasetCommentReply) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.DatasetComment{}).
			Where("id = ?", reply.CommentId).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrCommentNotFound
		}
		if reply.Id == uuid.Nil {
			reply.Id = uuid.New()
		}
		return tx.Create(reply).Error
	})
}

func (r *DatasetRepositoryImpl) ResolveComment(ctx context.Context, commentId uuid.UUID, resolved bool) error {
	res := r.db.WithContext(ctx).Model(&entity.DatasetComment{}).
		Where("id = ?", commentId).
		Updates(map[string]interface{}{"resolved": resolved, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (r *DatasetRepositoryImpl) FindComments(ctx context.Context, datasetId uuid.UUID) ([]*entity.DatasetComment, error) {
	var comments []*entity.DatasetComment
	err := r.db.WithContext(ctx).
		Preload("Replies").
		Where("dataset_id = ?", datasetId).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}
