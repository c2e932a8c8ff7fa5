package service

import (
	"context"

	"csvlens-be/internal/entity"
	"csvlens-be/internal/repository/contract"

	"github.com/google/uuid"
)

type IDatasetService interface {
	GetDataset(ctx context.Context, id uuid.UUID) (*entity.Dataset, error)
	GetCellHistory(ctx context.Context, id uuid.UUID, cellId string) ([]*entity.DatasetCellEdit, error)
	GetComments(ctx context.Context, id uuid.UUID) ([]*entity.DatasetComment, error)
}

// DatasetService is the REST read surface over the collaboration output:
// dataset content, the per-cell audit trail, and comment threads.
type DatasetService struct {
	repo contract.DatasetRepository
}

func NewDatasetService(repo contract.DatasetRepository) IDatasetService {
	return &DatasetService{repo: repo}
}

func (s *DatasetService) GetDataset(ctx context.Context, id uuid.UUID) (*entity.Dataset, error) {
	return s.repo.FindById(ctx, id)
}

func (s *DatasetService) GetCellHistory(ctx context.Context, id uuid.UUID, cellId string) ([]*entity.DatasetCellEdit, error) {
	if _, err := s.repo.FindById(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.FindCellEdits(ctx, id, cellId)
}

func (s *DatasetService) GetComments(ctx context.Context, id uuid.UUID) ([]*entity.DatasetComment, error) {
	if _, err := s.repo.FindById(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.FindComments(ctx, id)
}
