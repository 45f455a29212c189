package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// REVIEW_AUTO_MIGRATE is set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.App.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	applied, err := Up(ctx, sqlDB, Migrations())
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "applied": applied}), "dev migrations applied")
	return nil
}
