package main

import (
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/config"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/sysutil"
)

// app holds what every subcommand needs once the root pre-run has finished.
type app struct {
	dbPath string
	cfg    config.Config
	db     *gorm.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "couponctl",
		Short:         "Manage companies and ingest coupon files",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sysutil.ConfigureLogging(cfg.LogLevel, true)
			a.cfg = cfg

			db, err := repo.OpenSQLite(sysutil.FirstNonEmpty(a.dbPath, cfg.DBPath))
			if err != nil {
				return err
			}
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}
			a.db = db
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.db == nil {
				return nil
			}
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite path (default: DB_PATH)")

	root.AddCommand(newCompanyCmd(a), newIngestCmd(a))
	return root
}
