package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/talgya/hexatlas/internal/api"
	"github.com/talgya/hexatlas/internal/config"
	"github.com/talgya/hexatlas/internal/printer"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port     int
		db       string
		maxHexes int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve map generation and stored runs over HTTP",
		Long: `Serve the HTTP API:

  GET    /api/v1/status
  GET    /api/v1/maps
  POST   /api/v1/maps                      (admin token, rate limited)
  GET    /api/v1/maps/{id}[?format=msgpack]
  DELETE /api/v1/maps/{id}                 (admin token)
  GET    /api/v1/maps/{id}/hexes/{q}/{r}

The admin token is server.admin_key or $` + config.AdminKeyEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("max-hexes") {
				cfg.Server.MaxHexes = maxHexes
			}

			store, err := a.openDB(db)
			if err != nil {
				return printer.Error("Cannot open database", err.Error())
			}
			defer store.Close()

			if cfg.Server.AdminKey == "" {
				slog.Warn(config.AdminKeyEnv + " not set, POST and DELETE /maps are disabled")
			}
			srv := &api.Server{
				DB:           store,
				Options:      cfg.Pipeline,
				Port:         cfg.Server.Port,
				AdminKey:     cfg.Server.AdminKey,
				MaxHexes:     cfg.Server.MaxHexes,
				GenerateRate: cfg.Server.GenerateRate,
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return printer.Error("HTTP server error", err.Error())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (default from config)")
	cmd.Flags().StringVar(&db, "db", "", "database path (default from config)")
	cmd.Flags().IntVar(&maxHexes, "max-hexes", 0, "largest map accepted by POST /maps")
	return cmd
}
