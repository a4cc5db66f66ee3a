package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/twaio/twaio/internal/xclient"
	"go.uber.org/zap"
)

const (
	errMessageMissingTokens   = "account has no session tokens"
	errMessageMissingFactory  = "checker requires a verifier factory"
	errMessageCreateVerifier  = "create verifier"
	logMessageAccountVerified = "account tokens verified"
	logMessageAccountRejected = "account tokens rejected"
	logFieldScreenName        = "screen_name"
)

var (
	// ErrMissingTokens indicates a record without auth or csrf token.
	ErrMissingTokens = errors.New(errMessageMissingTokens)

	errMissingFactory = errors.New(errMessageMissingFactory)
)

// Verifier confirms the session behind a set of tokens.
type Verifier interface {
	VerifyCredentials(ctx context.Context) (xclient.Identity, error)
}

// VerifierFactory builds a Verifier for one stored account.
type VerifierFactory func(record Record) (Verifier, error)

// CheckResult reports the token check outcome for one account.
type CheckResult struct {
	Username   string
	Available  bool
	ScreenName string
	Err        error
}

// Checker verifies stored tokens and records the outcome in the store.
type Checker struct {
	store   *Store
	factory VerifierFactory
	logger  *zap.Logger
}

// NewChecker constructs a Checker.
func NewChecker(store *Store, factory VerifierFactory, logger *zap.Logger) (*Checker, error) {
	if factory == nil {
		return nil, errMissingFactory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: store, factory: factory, logger: logger}, nil
}

// Check verifies the named accounts one after another, or every stored account when usernames is empty.
// Each outcome is persisted through MarkAvailability; per-account failures are reported in the results.
func (checker *Checker) Check(ctx context.Context, usernames []string) ([]CheckResult, error) {
	records, err := checker.selectRecords(usernames)
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, 0, len(records))
	for _, record := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, ctxErr
		}
		result := checker.checkRecord(ctx, record)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, ctxErr
		}
		if markErr := checker.store.MarkAvailability(record.Username, result.Available); markErr != nil {
			return results, markErr
		}
		results = append(results, result)
	}
	return results, nil
}

func (checker *Checker) selectRecords(usernames []string) ([]Record, error) {
	if len(usernames) == 0 {
		return checker.store.List()
	}
	selected := make([]Record, 0, len(usernames))
	for _, username := range usernames {
		record, err := checker.store.Get(username)
		if err != nil {
			return nil, err
		}
		selected = append(selected, record)
	}
	return selected, nil
}

func (checker *Checker) checkRecord(ctx context.Context, record Record) CheckResult {
	result := CheckResult{Username: record.Username}
	if !record.HasTokens() {
		result.Err = ErrMissingTokens
		checker.logger.Warn(logMessageAccountRejected, zap.String(logFieldUsername, record.Username), zap.Error(result.Err))
		return result
	}
	verifier, err := checker.factory(record)
	if err != nil {
		result.Err = fmt.Errorf("%s: %w", errMessageCreateVerifier, err)
		checker.logger.Warn(logMessageAccountRejected, zap.String(logFieldUsername, record.Username), zap.Error(result.Err))
		return result
	}
	identity, err := verifier.VerifyCredentials(ctx)
	if err != nil {
		result.Err = err
		checker.logger.Warn(logMessageAccountRejected, zap.String(logFieldUsername, record.Username), zap.Error(err))
		return result
	}
	result.Available = true
	result.ScreenName = identity.ScreenName
	checker.logger.Info(logMessageAccountVerified, zap.String(logFieldUsername, record.Username), zap.String(logFieldScreenName, identity.ScreenName))
	return result
}
