package main

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talgya/mind-lab/internal/api"
	"github.com/talgya/mind-lab/internal/persistence"
)

var servePort int // overrides the configured port when non-zero

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP, SSE and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, err := cfg.EngineConfig()
		if err != nil {
			return err
		}

		srv := &api.Server{
			Registry:  api.NewRegistry(),
			Base:      ec,
			Deps:      buildDeps(ec),
			Port:      cfg.Server.Port,
			AdminKey:  cfg.Server.AdminKey,
			RateLimit: cfg.Server.RateLimit,
		}
		if servePort > 0 {
			srv.Port = servePort
		}

		if cfg.Storage.DBPath != "" {
			db, err := persistence.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			srv.DB = db
			logrus.WithField("path", cfg.Storage.DBPath).Info("database opened")
		}

		err = srv.ListenAndServe(cmd.Context())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port")
}
