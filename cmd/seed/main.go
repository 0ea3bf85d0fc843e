// seed inserts an activated development user for local testing into the configured identity store.
// Idempotent: skips the insert if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"credential-lifecycle/internal/account"
	"credential-lifecycle/internal/config"
	"credential-lifecycle/internal/db"
	"credential-lifecycle/internal/identity/domain"
	identityrepo "credential-lifecycle/internal/identity/repository"
	"credential-lifecycle/internal/security"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
	devUserName  = "Dev User"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo identityrepo.Repository
	switch cfg.IdentityStore {
	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		repo = identityrepo.NewPostgresRepository(conn)
	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mrepo := identityrepo.NewMongoRepository(client.Database(cfg.MongoDatabase))
		if err := mrepo.EnsureIndexes(ctx); err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
		repo = mrepo
	default:
		log.Fatalf("seed: IDENTITY_STORE=%q is not persistent; use postgres or mongo", cfg.IdentityStore)
	}

	existing, err := repo.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("lookup dev user: %v", err)
	}
	if existing != nil {
		fmt.Printf("Dev user already exists (id %s); skipping.\n", existing.ID)
		return
	}

	hasher := security.PasswordHasher(security.NewHasher(cfg.BcryptCost))
	if cfg.PasswordHasher == config.HasherArgon2id {
		hasher = security.NewArgon2idHasher(security.DefaultArgon2idParams())
	}
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	ident := &domain.Identity{
		ID:              uuid.NewString(),
		Email:           devUserEmail,
		PasswordHash:    hash,
		IsActive:        true,
		Name:            devUserName,
		Role:            domain.RoleUser,
		DefaultCurrency: cfg.DefaultCurrency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.Create(ctx, ident); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	accountID, err := account.NewLocalProvisioner().ProvisionDefault(ctx, ident.ID, cfg.DefaultCurrency)
	if err != nil {
		log.Fatalf("provision account: %v", err)
	}
	if err := repo.SetActiveAccount(ctx, ident.ID, accountID, now); err != nil {
		log.Fatalf("set active account: %v", err)
	}

	fmt.Println("Dev user created.")
	fmt.Printf("  email:    %s\n", devUserEmail)
	fmt.Printf("  password: %s\n", devPassword)
	fmt.Printf("  user id:  %s\n", ident.ID)
}
