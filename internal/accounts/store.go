package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// TokenFileName is the store file name inside the data directory.
	TokenFileName             = "acc_tokens.json"
	storeDirectoryPermissions = 0o755
	storeFilePermissions      = 0o600
	storeTempFilePattern      = ".acc_tokens-*.json"
	storeIndentPrefix         = ""
	storeIndent               = "  "
	csrfTokenByteLength       = 16
	errMessageAccountNotFound = "account not found"
	errMessageEmptyUsername   = "username cannot be empty"
	errMessageEmptyAuthToken  = "auth token cannot be empty"
	errMessageMissingPath     = "account store requires a file path"
	errMessageReadStore       = "read account store"
	errMessageDecodeStore     = "decode account store"
	errMessageEncodeStore     = "encode account store"
	errMessageWriteStore      = "write account store"
	errMessageGenerateCSRF    = "generate csrf token"
	logMessageStoreSaved      = "account store saved"
	logMessageTokensUpdated   = "account tokens updated"
	logFieldPath              = "path"
	logFieldAccounts          = "accounts"
	logFieldUsername          = "username"
)

var (
	// ErrAccountNotFound indicates a username missing from the store.
	ErrAccountNotFound = errors.New(errMessageAccountNotFound)
	// ErrEmptyUsername indicates a blank username.
	ErrEmptyUsername = errors.New(errMessageEmptyUsername)
	// ErrEmptyAuthToken indicates a blank auth token.
	ErrEmptyAuthToken = errors.New(errMessageEmptyAuthToken)

	errMissingPath = errors.New(errMessageMissingPath)
)

// Record is the persisted state of one account.
type Record struct {
	Username      string     `json:"username"`
	Phone         string     `json:"phone"`
	Password      string     `json:"password"`
	Email         string     `json:"email"`
	EmailPassword string     `json:"email_password"`
	AuthToken     string     `json:"auth_token"`
	CSRFToken     string     `json:"csrf_token"`
	UserAgent     string     `json:"user_agent"`
	Available     bool       `json:"available"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// HasTokens reports whether the record carries both session tokens.
func (record Record) HasTokens() bool {
	return strings.TrimSpace(record.AuthToken) != "" && strings.TrimSpace(record.CSRFToken) != ""
}

// StoreConfig customizes a Store instance.
type StoreConfig struct {
	Path   string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Store persists account records as a JSON object keyed by username.
type Store struct {
	path   string
	clock  func() time.Time
	logger *zap.Logger
	mutex  sync.Mutex
}

// NewStore constructs a Store for the configured file.
func NewStore(configuration StoreConfig) (*Store, error) {
	if strings.TrimSpace(configuration.Path) == "" {
		return nil, errMissingPath
	}
	clock := configuration.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: configuration.Path, clock: clock, logger: logger}, nil
}

// StorePath returns the token store location inside dataDirectory.
func StorePath(dataDirectory string) string {
	return filepath.Join(dataDirectory, TokenFileName)
}

// Path reports the backing file.
func (store *Store) Path() string {
	return store.path
}

// Load returns every record; a missing file yields an empty set.
func (store *Store) Load() (map[string]Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.load()
}

// List returns every record ordered by username.
func (store *Store) List() ([]Record, error) {
	records, err := store.Load()
	if err != nil {
		return nil, err
	}
	listed := make([]Record, 0, len(records))
	for _, record := range records {
		listed = append(listed, record)
	}
	sort.Slice(listed, func(left, right int) bool { return listed[left].Username < listed[right].Username })
	return listed, nil
}

// Get returns the record stored for username.
func (store *Store) Get(username string) (Record, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return Record{}, ErrEmptyUsername
	}
	records, err := store.Load()
	if err != nil {
		return Record{}, err
	}
	record, ok := records[trimmed]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrAccountNotFound, trimmed)
	}
	return record, nil
}

// Replace overwrites the whole store with records.
func (store *Store) Replace(records map[string]Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.save(records)
}

// Update applies mutate to the current records and saves the result atomically.
func (store *Store) Update(mutate func(records map[string]Record) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	records, err := store.load()
	if err != nil {
		return err
	}
	if err := mutate(records); err != nil {
		return err
	}
	return store.save(records)
}

// SetTokens stores the session tokens for username, creating the record when absent.
// A random csrf token is generated when csrfToken is empty.
func (store *Store) SetTokens(username string, authToken string, csrfToken string) (Record, error) {
	trimmedUsername := strings.TrimSpace(username)
	if trimmedUsername == "" {
		return Record{}, ErrEmptyUsername
	}
	trimmedAuthToken := strings.TrimSpace(authToken)
	if trimmedAuthToken == "" {
		return Record{}, ErrEmptyAuthToken
	}
	trimmedCSRFToken := strings.TrimSpace(csrfToken)
	if trimmedCSRFToken == "" {
		generated, err := GenerateCSRFToken()
		if err != nil {
			return Record{}, err
		}
		trimmedCSRFToken = generated
	}

	var updated Record
	err := store.Update(func(records map[string]Record) error {
		record, ok := records[trimmedUsername]
		if !ok {
			record = Record{Username: trimmedUsername}
		}
		record.AuthToken = trimmedAuthToken
		record.CSRFToken = trimmedCSRFToken
		record.Available = true
		updatedAt := store.clock()
		record.UpdatedAt = &updatedAt
		records[trimmedUsername] = record
		updated = record
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	store.logger.Info(logMessageTokensUpdated, zap.String(logFieldUsername, trimmedUsername))
	return updated, nil
}

// MarkAvailability records the outcome of a token check for username.
func (store *Store) MarkAvailability(username string, available bool) error {
	return store.Update(func(records map[string]Record) error {
		record, ok := records[username]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
		}
		record.Available = available
		updatedAt := store.clock()
		record.UpdatedAt = &updatedAt
		records[username] = record
		return nil
	})
}

// GenerateCSRFToken returns 16 random bytes encoded as hex.
func GenerateCSRFToken() (string, error) {
	buffer := make([]byte, csrfTokenByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("%s: %w", errMessageGenerateCSRF, err)
	}
	return hex.EncodeToString(buffer), nil
}

func (store *Store) load() (map[string]Record, error) {
	content, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadStore, err)
	}
	records := map[string]Record{}
	if len(strings.TrimSpace(string(content))) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecodeStore, err)
	}
	for username, record := range records {
		if record.Username == "" {
			record.Username = username
			records[username] = record
		}
	}
	return records, nil
}

func (store *Store) save(records map[string]Record) error {
	if records == nil {
		records = map[string]Record{}
	}
	encoded, err := json.MarshalIndent(records, storeIndentPrefix, storeIndent)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeStore, err)
	}
	directory := filepath.Dir(store.path)
	if err := os.MkdirAll(directory, storeDirectoryPermissions); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	tempFile, err := os.CreateTemp(directory, storeTempFilePattern)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(encoded); err != nil {
		tempFile.Close()
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	if err := tempFile.Chmod(storeFilePermissions); err != nil {
		tempFile.Close()
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	if err := os.Rename(tempPath, store.path); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteStore, err)
	}
	store.logger.Debug(logMessageStoreSaved, zap.String(logFieldPath, store.path), zap.Int(logFieldAccounts, len(records)))
	return nil
}
