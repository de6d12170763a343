package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot for local development when
// FILMTECH_AUTO_MIGRATE is set. Deployed environments run cmd/migrate instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil || logg == nil {
		return errors.New("db client and logger are required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "migrate.dev_autorun_started")
	if err := runner.Exec(ctx, "up", 0); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.dev_autorun_completed")
	return nil
}
