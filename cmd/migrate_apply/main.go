package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"voltfarm/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations")
	flag.Parse()

	if !*apply {
		names, err := migrations.Names()
		if err != nil {
			log.Fatal(err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	err = migrations.Apply(context.Background(), db, func(name string) {
		fmt.Printf("applied %s\n", name)
	})
	if err != nil {
		log.Fatal(err)
	}
}
