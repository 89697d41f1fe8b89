package domain

import "time"

// MockupStatus mirrors the owning job's lifecycle for gallery display.
type MockupStatus string

const (
	MockupStatusPending MockupStatus = "pending"
	MockupStatusReady   MockupStatus = "ready"
	MockupStatusFailed  MockupStatus = "failed"
)

// Mockup is the artifact a generation job produces: one uploaded product
// image rendered onto one template.
type Mockup struct {
	ID          string
	UserID      string
	TemplateID  string
	SourceKey   string
	ResultKey   string
	Status      MockupStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
