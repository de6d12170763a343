package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/autevo/filmtechos-backend/pkg/config"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	names := append(migrate.CommandNames(), "create", "validate")
	cmd := flag.String("cmd", "up", "migration command: "+strings.Join(names, "|"))
	dir := flag.String("dir", "", "migrations directory; empty uses the embedded set ("+migrate.DefaultDir+" for create/validate)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	sourceDir := *dir
	if sourceDir == "" {
		sourceDir = migrate.DefaultDir
	}

	switch *cmd {
	case "create":
		if strings.TrimSpace(*name) == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(sourceDir, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(sourceDir); err != nil {
			fail("%v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	if _, ok := migrate.Commands[*cmd]; !ok {
		fail("unknown -cmd %q (expected %s)", *cmd, strings.Join(names, "|"))
	}
	var target int64
	if *cmd == "version" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(*version), 10, 64)
		if err != nil || parsed <= 0 {
			fail("-version must be a migration timestamp (YYYYMMDDHHMMSS)")
		}
		target = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		os.Exit(1)
	}

	var source fs.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source, logg)
	if err != nil {
		logg.Error(ctx, "migrate.setup_failed", err)
		os.Exit(1)
	}
	if err := runner.Exec(ctx, *cmd, target); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.completed")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
