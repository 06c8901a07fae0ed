package models

import "time"

type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
	LogInfo    LogStatus = "info"
)

// GenerationLog is one diagnostic entry. SubjectID 0 marks a system event
// such as a connection test, in which case Detail holds the event type.
type GenerationLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SubjectID       uint      `gorm:"not null;default:0;index" json:"subject_id"`
	Detail          string    `gorm:"type:text" json:"detail"`
	Status          LogStatus `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message"`
	DurationSeconds float64   `gorm:"default:0" json:"duration_seconds"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
