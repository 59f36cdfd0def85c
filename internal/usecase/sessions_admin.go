package usecase

import (
	"context"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/services/sessions"
)

// SessionsUseCase administers session definitions. Edits take effect for
// refreshes that start afterwards; stored rollups are never rewritten.
type SessionsUseCase struct {
	registry *sessions.Registry
}

func NewSessionsUseCase(registry *sessions.Registry) *SessionsUseCase {
	return &SessionsUseCase{registry: registry}
}

// List returns every definition, or those whose scope covers symbol,
// including disabled ones.
func (uc *SessionsUseCase) List(symbol string) []models.SessionDefinition {
	all := uc.registry.Snapshot().All()
	if symbol == "" {
		return all
	}
	out := make([]models.SessionDefinition, 0, len(all))
	for _, d := range all {
		if d.AppliesTo(symbol) {
			out = append(out, d)
		}
	}
	return out
}

func (uc *SessionsUseCase) Upsert(ctx context.Context, def models.SessionDefinition) (models.SessionDefinition, error) {
	return uc.registry.Upsert(ctx, def)
}

func (uc *SessionsUseCase) Disable(ctx context.Context, id int64) error {
	return uc.registry.Disable(ctx, id)
}
