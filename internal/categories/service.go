// Package categories manages the income and expense labels of a ledger.
package categories

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/db"
)

type Store interface {
	Create(ctx context.Context, c *models.Category) error
	List(ctx context.Context, ledgerID uuid.UUID) ([]*models.Category, error)
	SeedTx(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, cs []*models.Category) (int, error)
}

type Service struct {
	pool       db.TxBeginner
	categories Store
}

func NewService(pool db.TxBeginner, categories Store) *Service {
	return &Service{pool: pool, categories: categories}
}

func (s *Service) List(ctx context.Context, scope access.Scope) ([]*models.Category, error) {
	if err := scope.Authorize(access.ReadLedger); err != nil {
		return nil, err
	}
	return s.categories.List(ctx, scope.LedgerID)
}

func (s *Service) Create(ctx context.Context, scope access.Scope, name string, kind models.CategoryKind, icon *string) (*models.Category, error) {
	if err := scope.Authorize(access.WriteCategories); err != nil {
		return nil, err
	}
	c := &models.Category{ID: uuid.New(), LedgerID: scope.LedgerID, Name: strings.TrimSpace(name), Kind: kind}
	if c.Name == "" {
		return nil, apperr.Validation("name", "is required")
	}
	if !kind.Valid() {
		return nil, apperr.Validation("kind", "must be income or expense")
	}
	if icon != nil && strings.TrimSpace(*icon) != "" {
		v := strings.TrimSpace(*icon)
		c.Icon = &v
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Seed installs the default set into a ledger that has no categories yet and
// reports how many were inserted. Seeding twice inserts nothing.
func (s *Service) Seed(ctx context.Context, scope access.Scope) (int, error) {
	if err := scope.Authorize(access.WriteCategories); err != nil {
		return 0, err
	}
	defaults := make([]*models.Category, 0, len(models.DefaultCategories))
	for _, d := range models.DefaultCategories {
		icon := d.Icon
		defaults = append(defaults, &models.Category{
			ID: uuid.New(), LedgerID: scope.LedgerID, Name: d.Name, Kind: d.Kind, Icon: &icon,
		})
	}
	var n int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = s.categories.SeedTx(ctx, tx, scope.LedgerID, defaults)
		return err
	})
	return n, err
}
