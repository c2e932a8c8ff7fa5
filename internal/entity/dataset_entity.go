package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Dataset is the persisted form of an uploaded CSV file: column order plus the
// parsed rows as a jsonb array of objects keyed by column name.
type Dataset struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserId    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Filename  string    `gorm:"type:varchar(255)" json:"filename"`
	Columns   datatypes.JSON `gorm:"type:jsonb" json:"columns"`
	Rows      datatypes.JSON `gorm:"type:jsonb" json:"rows"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	IsDeleted bool      `json:"-"`
}

// DatasetCellEdit is one entry of the per-cell audit trail. Version counts up
// per cell_id within a dataset; every committed collaborative edit appends one.
type DatasetCellEdit struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetId    uuid.UUID `gorm:"type:uuid;index:idx_cell_edits_dataset_cell,priority:1" json:"dataset_id"`
	CellId       string    `gorm:"type:varchar(100);index:idx_cell_edits_dataset_cell,priority:2" json:"cell_id"`
	RowIndex     int       `json:"row_index"`
	Column       string    `gorm:"type:varchar(100)" json:"column"`
	OldValue     string    `gorm:"type:text" json:"old_value"`
	NewValue     string    `gorm:"type:text" json:"new_value"`
	Version      int       `json:"version"`
	EditedBy     uuid.UUID `gorm:"type:uuid;index" json:"edited_by"`
	EditedByName string    `gorm:"type:varchar(100)" json:"edited_by_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// DatasetComment is a per-cell discussion thread.
type DatasetComment struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetId  uuid.UUID `gorm:"type:uuid;index" json:"dataset_id"`
	RowIndex   int       `json:"row_index"`
	Column     string    `gorm:"type:varchar(100)" json:"column"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	AuthorId   uuid.UUID `gorm:"type:uuid" json:"author_id"`
	AuthorName string    `gorm:"type:varchar(100)" json:"author_name"`
	Resolved   bool      `gorm:"default:false" json:"resolved"`
	Replies    []DatasetCommentReply `gorm:"foreignKey:CommentId;constraint:OnDelete:CASCADE" json:"replies"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type DatasetCommentReply struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CommentId  uuid.UUID `gorm:"type:uuid;index" json:"comment_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	AuthorId   uuid.UUID `gorm:"type:uuid" json:"author_id"`
	AuthorName string    `gorm:"type:varchar(100)" json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}
