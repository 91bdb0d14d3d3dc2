package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"voltfarm/internal/db"
	"voltfarm/internal/domain"
	"voltfarm/internal/repository"
	"voltfarm/internal/service"
)

func main() {
	userID := flag.Int64("id", 1234567890, "telegram user id")
	gpus := flag.Int("gpus", 1, "gpu count for a new miner")
	flag.Parse()

	// expects DATABASE_URL and JWT_SECRET env vars
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	repo := repository.NewMinerRepository(pool)
	ctx := context.Background()

	st, created, err := repo.Update(ctx, *userID, time.Now().UTC(), func(st *domain.MiningState, created bool, _ service.Tx) error {
		if created && *gpus > 0 {
			st.GPUCount = *gpus
		}
		return nil
	})
	if err != nil {
		log.Fatalf("upsert miner failed: %v", err)
	}
	if created {
		log.Printf("miner created user_id=%d gpus=%d\n", st.UserID, st.GPUCount)
	} else {
		log.Printf("miner already exists user_id=%d balance=%.2f\n", st.UserID, st.Balance)
	}

	token, err := service.NewTokenIssuer(secret, 24*time.Hour).Generate(st.UserID)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	log.Printf("token=%s\n", token)
}
