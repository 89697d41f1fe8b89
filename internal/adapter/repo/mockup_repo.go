package repo

import (
	"context"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
	"mockforge/internal/sqlinline"
)

// MockupRepositoryPG implements domain.MockupRepository.
type MockupRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewMockupRepository creates a mockup repository backed by PostgreSQL.
func NewMockupRepository(sql infra.SQLExecutor) *MockupRepositoryPG {
	return &MockupRepositoryPG{sql: sql}
}

func (r *MockupRepositoryPG) Create(ctx context.Context, m *domain.Mockup) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertMockup, m.ID, m.UserID, m.TemplateID, m.SourceKey, m.Status)
	return err
}

func (r *MockupRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Mockup, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectMockupByID, id)
	var m domain.Mockup
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.TemplateID,
		&m.SourceKey,
		&m.ResultKey,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MockupRepositoryPG) SetResult(ctx context.Context, id, resultKey string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetMockupResult, id, resultKey)
	return err
}

func (r *MockupRepositoryPG) SetStatus(ctx context.Context, id string, status domain.MockupStatus) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetMockupStatus, id, status)
	return err
}

var _ domain.MockupRepository = (*MockupRepositoryPG)(nil)
