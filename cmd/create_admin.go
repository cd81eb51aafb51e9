package cmd

import (
	"context"

	"github.com/rlms-portal/forms-services/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var adminUsername, adminEmail, adminPassword string

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long:  `Admins can only be registered by another admin over the API, so the first one is created here.`,
	Run: func(cmd *cobra.Command, args []string) {

		commonSetUp()
		defer portalDB.Close()

		ctx := context.Background()
		issuer, err := newIssuer(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize token issuer")
		}

		accounts := services.NewAccountService(portalDB, issuer)
		admin, err := accounts.BootstrapAdmin(ctx, adminUsername, adminEmail, adminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create admin")
		}

		log.Info().Str("id", admin.ID.String()).Str("username", admin.Username).Msg("admin created")
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password")
	createAdminCmd.MarkFlagRequired("username")
	createAdminCmd.MarkFlagRequired("email")
	createAdminCmd.MarkFlagRequired("password")
}
