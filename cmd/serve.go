package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rlms-portal/forms-services/api"
	"github.com/rlms-portal/forms-services/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// @title Compliance Forms API
// @version v1
// @description This is the API for the compliance forms portal.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for handling API requests",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer portalDB.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		issuer, err := newIssuer(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize token issuer")
		}

		// Initialize event publisher
		publisher, err := newNotifier()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize event publisher")
		}
		defer publisher.Close()

		router := api.NewRouter(api.RouterConfig{
			Host:           appCfg.Host,
			BasePath:       appCfg.BasePath,
			DocsPath:       appCfg.DocsPath,
			AllowedOrigins: appCfg.CORS.AllowedOrigins,
			Accounts:       services.NewAccountService(portalDB, issuer),
			Submissions:    services.NewSubmissionService(portalDB, portalDB, publisher),
			Verifier:       issuer,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}

		go func() {
			log.Info().Msg(fmt.Sprintf("Server started at %s", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("could not start server")
			}
		}()

		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "host to run the server on")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the server on")
}
