// Command rcbudget-migrate applies the access-control schema migrations to
// a PostgreSQL database.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/cccs-paul/rcbudget/pkg/acl"
)

func main() {
	var (
		databaseURL string
		logLevel    string
		timeout     time.Duration
		list        bool
	)
	flag.StringVar(&databaseURL, "database-url", os.Getenv("RCBUDGET_POSTGRES_URL"), "PostgreSQL connection URL")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall migration timeout")
	flag.BoolVar(&list, "list", false, "List migrations and exit without applying")
	flag.Parse()

	logger := setupLogger(logLevel)

	if list {
		for _, m := range acl.GetMigrations() {
			fmt.Printf("%3d  %s\n", m.Version, m.Description)
		}
		return
	}

	if databaseURL == "" {
		logger.Fatal("database URL is required (-database-url or RCBUDGET_POSTGRES_URL)")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("database is not reachable")
	}

	logger.WithField("migrations", len(acl.GetMigrations())).Info("applying migrations")
	start := time.Now()
	if err := acl.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("migrations applied")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
