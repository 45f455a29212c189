package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory on disk (default: migrations compiled into the binary)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch files.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail(fmt.Sprintf("create migration: %v", err))
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(*dir)); err != nil {
			fail(fmt.Sprintf("migration validation failed: %v", err))
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(fmt.Sprintf("load config: %v", err))
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "warehouse unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "warehouse sql handle unavailable", err)
		os.Exit(1)
	}

	source := migrate.Source(*dir)
	switch *cmd {
	case "up", "down", "status":
		err = migrate.Run(ctx, sqlDB, source, *cmd, os.Stdout)
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, source, *version)
	default:
		fail(fmt.Sprintf("unknown -cmd value: %s", *cmd))
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
