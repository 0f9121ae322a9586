package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shadowsight/shadowsight/internal/config"
	"github.com/shadowsight/shadowsight/internal/database"
	"github.com/shadowsight/shadowsight/internal/localstore"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the storage schema",
		Run:   runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			exitErr("connect", err)
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			exitErr("migrate", err)
		}
		fmt.Println("postgres schema is up to date")
	case config.StoreSQLite:
		// Opening the store applies the schema.
		s, err := localstore.New(cfg.SQLitePath)
		if err != nil {
			exitErr("migrate", err)
		}
		defer s.Close()
		fmt.Printf("sqlite schema at %s is up to date\n", cfg.SQLitePath)
	case config.StoreFirestore:
		fmt.Println("firestore needs no migration; create the composite indexes on sessions(recruiterId, timestamp desc) and flaggedEvents(sessionId, timestamp)")
	}
}
