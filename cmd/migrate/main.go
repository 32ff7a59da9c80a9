package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aedile.org/internal/migrate"
)

const usage = "usage: migrate [-dsn ...] [-migrations dir] [-seeds dir] up|down|seed|status"

func main() {
	log.SetFlags(0)
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("dsn", os.Getenv("AEDILE_PG_DSN"), "PostgreSQL DSN")
	migrationsDir := flag.String("migrations", "ops/migrations/sql", "directory with NNN_name.up.sql/.down.sql files")
	seedsDir := flag.String("seeds", "ops/migrations/seeds", "directory with idempotent seed files")
	flag.Parse()

	if *dsn == "" {
		return fmt.Errorf("no DSN: set -dsn or AEDILE_PG_DSN\n%s", usage)
	}
	command := flag.Arg(0)
	if command == "" {
		return fmt.Errorf("no command\n%s", usage)
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	mgr := migrate.NewManager(db, *migrationsDir, *seedsDir)

	switch command {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var lines []string
		if lines, err = mgr.Status(ctx); err == nil {
			for _, line := range lines {
				fmt.Println(line)
			}
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
