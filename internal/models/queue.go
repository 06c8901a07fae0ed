package models

import "time"

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// ActiveStatuses are the statuses that block a second enqueue of the same
// subject.
var ActiveStatuses = []QueueStatus{QueuePending, QueueProcessing}

// TerminalStatuses are removed by a processed-items cleanup.
var TerminalStatuses = []QueueStatus{QueueCompleted, QueueFailed}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueuePending, QueueProcessing, QueueCompleted, QueueFailed:
		return true
	}
	return false
}

type QueueItem struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SubjectID   uint        `gorm:"not null;index" json:"subject_id"`
	Status      QueueStatus `gorm:"size:20;not null;default:'pending';index:idx_queue_status_priority,priority:1" json:"status"`
	Priority    int         `gorm:"not null;default:0;index:idx_queue_status_priority,priority:2" json:"priority"`
	Error       string      `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at"`
}

func (QueueItem) TableName() string {
	return "generation_queue"
}
