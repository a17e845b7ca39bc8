package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hometracker.app/internal/config"
	"hometracker.app/internal/migrate"
	"hometracker.app/internal/obs"
	"hometracker.app/internal/store/pg"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	dsn := flag.String("dsn", cfg.PGDSN, "PostgreSQL DSN")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or HOMETRACKER_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	mgr, err := migrate.NewManager(store.DB())
	if err != nil {
		log.WithError(err).Fatal("init migrations")
	}

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}
