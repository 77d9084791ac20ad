package main

import (
	"fmt"

	"github.com/shenikar/alerto360/internal/config"
	"github.com/shenikar/alerto360/internal/repository"
	"github.com/shenikar/alerto360/internal/service"
	"github.com/shenikar/alerto360/pkg/logger"
	"github.com/shenikar/alerto360/pkg/postgres"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var createAdminCommand = &cli.Command{
	Name:  "create-admin",
	Usage: "Create an administrator account",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true, Usage: "Display name"},
		&cli.StringFlag{Name: "email", Required: true, Usage: "Login email"},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "Password (at least 8 characters)",
			EnvVars: []string{"ADMIN_PASSWORD"},
		},
	},
	Action: createAdmin,
}

func createAdmin(cCtx *cli.Context) error {
	password := cCtx.String("password")
	if password == "" {
		return fmt.Errorf("password is required (--password or ADMIN_PASSWORD)")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	pool, err := postgres.NewPostgresDB(cCtx.Context, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	db := postgres.OpenDB(pool)
	defer db.Close()

	users := service.NewUserService(repository.NewUserRepository(db), cfg.JWTSecret, cfg.JWTTTL, log)
	user, err := users.CreateAdmin(cCtx.Context, cCtx.String("name"), cCtx.String("email"), password)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("Administrator created")
	return nil
}
