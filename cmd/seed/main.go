// Command seed creates the demo accounts admin1..admin10 with passwords
// password1..password10. Existing accounts are left untouched.
package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"groupchat/internal/config"
	"groupchat/internal/database"
	"groupchat/pkg/logger"
)

const demoAccounts = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	var db database.Database
	switch cfg.Database.Driver {
	case config.DriverBadger:
		db, err = database.NewBadgerDB(cfg.Database.BadgerPath)
	default:
		if err = database.Migrate(cfg.Database.URL); err == nil {
			db, err = database.NewPostgresDB(ctx, cfg.Database.URL)
		}
	}
	if err != nil {
		logger.Fatal("Failed to open store: %v", err)
	}
	defer db.Close()

	created, err := seedUsers(ctx, db, demoAccounts, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("Seeding failed: %v", err)
	}
	logger.Info("%d admin users created (%d already present)", created, demoAccounts-created)
}

func seedUsers(ctx context.Context, users database.UserRepository, n, cost int) (int, error) {
	created := 0
	for i := 1; i <= n; i++ {
		username := fmt.Sprintf("admin%d", i)
		hash, err := bcrypt.GenerateFromPassword([]byte(fmt.Sprintf("password%d", i)), cost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", username, err)
		}

		_, err = users.CreateUser(ctx, username, string(hash))
		if errors.Is(err, database.ErrUsernameTaken) {
			logger.Debug("User %s already exists", username)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create %s: %w", username, err)
		}
		created++
	}
	return created, nil
}
