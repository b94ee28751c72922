package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/database"
)

var rootCmd = &cobra.Command{
	Use:           "importctl",
	Short:         "Operate price and inventory spreadsheet imports",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log row failures and progress")
	rootCmd.AddCommand(newImportCmd(), newTemplatesCmd(), newSampleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func openDB(cfg *config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	if cfg.Environment == "development" {
		// keep SQL tracing out of the report
		cfg.Environment = "test"
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		return nil, err
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}
