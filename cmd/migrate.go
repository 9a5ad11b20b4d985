package cmd

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-transactions/migrations"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("up", func(m *migrate.Migrate) error {
			if migrateSteps > 0 {
				return m.Steps(migrateSteps)
			}
			return m.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (one step unless --steps is given)",
	Run: func(_ *cobra.Command, _ []string) {
		steps := migrateSteps
		if steps <= 0 {
			steps = 1
		}
		runMigration("down", func(m *migrate.Migrate) error {
			return m.Steps(-steps)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().IntVar(&migrateSteps, "steps", 0, "Number of migrations to apply or roll back")
}

func runMigration(direction string, fn func(m *migrate.Migrate) error) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open embedded migrations")
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize migrations")
	}

	logger := logrus.WithField("direction", direction)
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.WithError(err).Fatal("Migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.WithError(err).Warn("Failed to read migration version")
		return
	}
	logger.WithField("version", version).WithField("dirty", dirty).Info("Migration completed")
}
