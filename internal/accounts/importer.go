package accounts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// AccountsFileName is the default import file name.
	AccountsFileName              = "accounts.txt"
	accountsFilePermissions       = 0o600
	errMessageAccountsFileCreated = "accounts file was not found and has been created"
	errMessageAccountsFileEmpty   = "accounts file is empty"
	errMessageReadAccountsFile    = "read accounts file"
	errMessageCreateAccountsFile  = "create accounts file"
	logMessageAccountsImported    = "accounts imported"
	logFieldImported              = "imported"
	logFieldPreserved             = "preserved_tokens"
	logFieldReset                 = "reset"
	logFieldAccountsFile          = "accounts_file"
)

var (
	// ErrAccountsFileCreated indicates the accounts file was missing and an empty one was created.
	ErrAccountsFileCreated = errors.New(errMessageAccountsFileCreated)
	// ErrAccountsFileEmpty indicates the accounts file has no content.
	ErrAccountsFileEmpty = errors.New(errMessageAccountsFileEmpty)
)

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported        int
	PreservedTokens int
}

// ImportAccounts merges the accounts listed in accountsPath into store.
// Tokens already stored for a username are kept unless reset discards the existing store.
// Nothing is written when any line is malformed.
func ImportAccounts(store *Store, accountsPath string, reset bool, logger *zap.Logger) (ImportResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	content, err := os.ReadFile(accountsPath)
	if errors.Is(err, os.ErrNotExist) {
		if mkdirErr := os.MkdirAll(filepath.Dir(accountsPath), storeDirectoryPermissions); mkdirErr != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", errMessageCreateAccountsFile, mkdirErr)
		}
		if writeErr := os.WriteFile(accountsPath, nil, accountsFilePermissions); writeErr != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", errMessageCreateAccountsFile, writeErr)
		}
		return ImportResult{}, fmt.Errorf("%w: %s", ErrAccountsFileCreated, accountsPath)
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("%s: %w", errMessageReadAccountsFile, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return ImportResult{}, fmt.Errorf("%w: %s", ErrAccountsFileEmpty, accountsPath)
	}

	parsed, err := ParseAccounts(bytes.NewReader(content))
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{}
	err = store.Update(func(records map[string]Record) error {
		if reset {
			for username := range records {
				delete(records, username)
			}
		}
		for _, credentials := range parsed {
			record, exists := records[credentials.Username]
			if exists && record.HasTokens() {
				result.PreservedTokens++
			}
			record.Username = credentials.Username
			record.Password = credentials.Password
			record.Email = credentials.Email
			record.Phone = credentials.Phone
			records[credentials.Username] = record
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	logger.Info(logMessageAccountsImported,
		zap.String(logFieldAccountsFile, accountsPath),
		zap.Int(logFieldImported, result.Imported),
		zap.Int(logFieldPreserved, result.PreservedTokens),
		zap.Bool(logFieldReset, reset))
	return result, nil
}
