package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/twaio/twaio/internal/accounts"
)

const (
	accountsCommandUse     = "accounts"
	accountsCommandShort   = "Manage stored accounts and their session tokens"
	accountsImportUse      = "import"
	accountsImportShort    = "Import username:password:email:phone lines into the token store"
	accountsTokensUse      = "tokens <username> <auth_token> [ct0]"
	accountsTokensShort    = "Store session tokens for an account; a csrf token is generated when omitted"
	accountsCheckUse       = "check [username...]"
	accountsCheckShort     = "Verify stored tokens and record which accounts are available"
	accountsListUse        = "list"
	accountsListShort      = "List stored accounts"
	flagFileName           = "file"
	flagFileDescription    = "Accounts file (defaults to accounts.txt in the data directory)"
	flagResetName          = "reset"
	flagResetDescription   = "Discard every stored record before importing"
	importSummaryFormat    = "Imported %d accounts (%d kept their tokens) into %s\n"
	importCreatedFormat    = "Created empty %s; add username:password:email:phone lines and rerun\n"
	tokensStoredFormat     = "Stored tokens for %s (ct0 %s)\n"
	checkAvailableFormat   = "%s\tavailable\t@%s\n"
	checkUnavailableFormat = "%s\tunavailable\t%v\n"
	listHeader             = "USERNAME\tAVAILABLE\tTOKENS\tUPDATED\n"
	listRowFormat          = "%s\t%t\t%t\t%s\n"
	listEmptyMessage       = "No stored accounts\n"
	listNeverUpdated       = "-"
	listColumnPadding      = 2
)

func (application *Application) newAccountsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   accountsCommandUse,
		Short: accountsCommandShort,
	}
	command.AddCommand(
		application.newAccountsImportCommand(),
		application.newAccountsTokensCommand(),
		application.newAccountsCheckCommand(),
		application.newAccountsListCommand(),
	)
	return command
}

func (application *Application) newAccountsImportCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   accountsImportUse,
		Short: accountsImportShort,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			accountsPath, _ := command.Flags().GetString(flagFileName)
			if strings.TrimSpace(accountsPath) == "" {
				accountsPath = filepath.Join(application.dataDirectory(), accounts.AccountsFileName)
			}
			reset, _ := command.Flags().GetBool(flagResetName)

			store, err := application.openStore()
			if err != nil {
				return err
			}
			result, err := accounts.ImportAccounts(store, accountsPath, reset, application.logger)
			if errors.Is(err, accounts.ErrAccountsFileCreated) {
				application.printf(importCreatedFormat, accountsPath)
				return nil
			}
			if err != nil {
				return err
			}
			application.printf(importSummaryFormat, result.Imported, result.PreservedTokens, store.Path())
			return nil
		},
	}
	command.Flags().String(flagFileName, "", flagFileDescription)
	command.Flags().Bool(flagResetName, false, flagResetDescription)
	return command
}

func (application *Application) newAccountsTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   accountsTokensUse,
		Short: accountsTokensShort,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			csrfToken := ""
			if len(args) == 3 {
				csrfToken = args[2]
			}
			store, err := application.openStore()
			if err != nil {
				return err
			}
			record, err := store.SetTokens(args[0], args[1], csrfToken)
			if err != nil {
				return err
			}
			application.printf(tokensStoredFormat, record.Username, record.CSRFToken)
			return nil
		},
	}
}

func (application *Application) newAccountsCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   accountsCheckUse,
		Short: accountsCheckShort,
		RunE: func(command *cobra.Command, args []string) error {
			store, err := application.openStore()
			if err != nil {
				return err
			}
			checker, err := accounts.NewChecker(store, func(record accounts.Record) (accounts.Verifier, error) {
				client, clientErr := application.newClient(record)
				if clientErr != nil {
					return nil, clientErr
				}
				return client, nil
			}, application.logger)
			if err != nil {
				return err
			}
			results, err := checker.Check(command.Context(), args)
			for _, result := range results {
				if result.Available {
					application.printf(checkAvailableFormat, result.Username, result.ScreenName)
					continue
				}
				application.printf(checkUnavailableFormat, result.Username, result.Err)
			}
			return err
		},
	}
}

func (application *Application) newAccountsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   accountsListUse,
		Short: accountsListShort,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := application.openStore()
			if err != nil {
				return err
			}
			records, err := store.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				application.printf(listEmptyMessage)
				return nil
			}
			writer := tabwriter.NewWriter(application.dependencies.Stdout, 0, 0, listColumnPadding, ' ', 0)
			fmt.Fprint(writer, listHeader)
			for _, record := range records {
				updated := listNeverUpdated
				if record.UpdatedAt != nil {
					updated = record.UpdatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(writer, listRowFormat, record.Username, record.Available, record.HasTokens(), updated)
			}
			return writer.Flush()
		},
	}
}
