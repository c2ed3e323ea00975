package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/desertthunder/harmony/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	shared.ApplyEnv(config)

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", config.Database.Path)
}

// DatabaseStatus lists every known migration and whether it has been applied.
func (r *Runner) DatabaseStatus(ctx context.Context, cmd *cli.Command) error {
	db, release, err := r.unmigrated()
	if err != nil {
		return err
	}
	defer release()

	status, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	r.writePlainHeader("Migrations: " + r.config.Database.Path)
	for _, m := range status {
		mark := "✗"
		if m.Applied {
			mark = "✓"
		}
		r.writePlain("%s %03d %s\n", mark, m.Version, m.Name)
	}
	return nil
}

// DatabaseRollback reverts the most recently applied migration.
func (r *Runner) DatabaseRollback(ctx context.Context, cmd *cli.Command) error {
	db, release, err := r.unmigrated()
	if err != nil {
		return err
	}
	defer release()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	r.logger.Info("rolled back latest migration", "path", r.config.Database.Path)
	return r.writePlain("✓ Rolled back latest migration\n")
}

func openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	return db, nil
}

// unmigrated returns the runner's database without applying migrations.
func (r *Runner) unmigrated() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}
	db, err := openDatabase(r.config)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
