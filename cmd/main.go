package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// @title Alerto360 API
// @version 1.0
// @description Emergency incident reporting and dispatch API.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := &cli.App{
		Name:  "alerto360",
		Usage: "Emergency incident reporting and dispatch service",
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			createAdminCommand,
		},
		// без подкоманды запускаем сервер
		DefaultCommand: serveCommand.Name,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
