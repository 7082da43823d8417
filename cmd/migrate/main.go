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

	"warden.dev/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("AUTH_PG_DSN"), "PostgreSQL DSN")
		verbose = flag.Bool("v", false, "Log each applied migration")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or AUTH_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr, err := migrate.NewManager(db, migrate.WithVerbose(*verbose))
	if err != nil {
		log.Fatalf("init migrations: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		var n int
		n, err = mgr.Up(ctx)
		if err == nil {
			fmt.Printf("applied %d migration(s)\n", n)
		}
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []migrate.Status
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				state := "pending"
				if item.Applied {
					state = "applied"
				}
				fmt.Printf("%05d  %-8s %s\n", item.Version, state, item.Path)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
