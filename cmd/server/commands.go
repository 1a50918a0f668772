package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/commerce"
	"github.com/tyemirov/cellarcrm/internal/crm"
	"github.com/tyemirov/cellarcrm/internal/database"
	"github.com/tyemirov/cellarcrm/internal/passwords"
)

// syncConfig is what the sync-customers command needs.
type syncConfig struct {
	DatabaseURL string
	Commerce    commerce.Config
}

// newLogger builds the logger commands run with. Tests swap it for an observer.
var newLogger = func() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newSyncCustomersCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sync-customers",
		Short:   "Mirror Shopware customers and sales rep accounts into the CRM database",
		Args:    cobra.NoArgs,
		PreRunE: prepareSyncConfig,
		RunE:    runSyncCustomers,
	}
}

func prepareSyncConfig(command *cobra.Command, arguments []string) error {
	databaseURL, _, err := loadStorageSettings()
	if err != nil {
		return err
	}
	commerceConfig := loadCommerceConfig()
	if !commerceConfig.Configured() {
		return configError(configCodeMissingShopware, "shopware_url, shopware_client_id, and shopware_client_secret must be provided")
	}
	setCommandValue(command, syncConfigContextKey, syncConfig{DatabaseURL: databaseURL, Commerce: commerceConfig})
	return nil
}

func runSyncCustomers(command *cobra.Command, arguments []string) error {
	configuration, ok := commandValue(command, syncConfigContextKey).(syncConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "sync configuration not prepared; PreRunE must execute before RunE")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gormDB, driverLabel, err := database.Open(configuration.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeGormDB(gormDB)()

	crmStore, err := crm.NewStore(command.Context(), gormDB, driverLabel)
	if err != nil {
		return err
	}
	syncer := commerce.NewSyncer(commerce.NewClient(configuration.Commerce, nil, logger), crmStore,
		configuration.Commerce.SalesRepGroupID, logger)
	report, err := syncer.SyncCustomers(command.Context())
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(command.OutOrStdout(), string(encoded))
	return err
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an argon2id hash for seeding an account (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHashPassword,
	}
}

func runHashPassword(command *cobra.Command, arguments []string) error {
	plain := ""
	if len(arguments) == 1 {
		plain = arguments[0]
	} else {
		scanner := bufio.NewScanner(command.InOrStdin())
		if scanner.Scan() {
			plain = strings.TrimRight(scanner.Text(), "\r")
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("hash_password.read: %w", err)
		}
	}
	if plain == "" {
		return fmt.Errorf("hash_password: password must be non-empty")
	}
	hash, err := passwords.HashArgon2id(plain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(command.OutOrStdout(), hash)
	return err
}
