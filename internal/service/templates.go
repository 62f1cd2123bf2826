package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rcliao/momentum/internal/domain"
)

// SaveTemplate stores a reusable task shape.
func (e *Engine) SaveTemplate(ctx context.Context, tpl *domain.Template) (*domain.Template, error) {
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	id, err := e.activeStore().CreateTemplate(ctx, tpl)
	if err != nil {
		return nil, err
	}
	return e.activeStore().GetTemplate(ctx, id)
}

func (e *Engine) Templates(ctx context.Context) ([]*domain.Template, error) {
	return e.activeStore().ListTemplates(ctx)
}

func (e *Engine) DeleteTemplate(ctx context.Context, id string) error {
	return e.activeStore().DeleteTemplate(ctx, id)
}

// InstantiateTemplate creates a new task from the template through the
// normal creation path and bumps the template's use counter. The
// counter bump is best effort.
func (e *Engine) InstantiateTemplate(ctx context.Context, templateID, ownerID string) (*domain.Task, error) {
	tpl, err := e.activeStore().GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	created, err := e.AddTask(ctx, tpl.Instantiate(ownerID))
	if err != nil {
		return nil, err
	}

	if _, err := e.activeStore().UpdateTemplate(ctx, templateID, map[string]interface{}{
		"useCount": tpl.UseCount + 1,
	}); err != nil {
		e.logger.Warn("template use counter not updated",
			slog.String("template", templateID), slog.String("error", err.Error()))
	}

	return created, nil
}
