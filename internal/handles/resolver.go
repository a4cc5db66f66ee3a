package handles

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	handlePrefix             = "@"
	defaultWorkerConcurrency = 4
	errMessageEmptyHandle    = "handle cannot be empty"
	errMessageMissingLookup  = "handle resolver requires an id lookup"
	logMessageHandleResolved = "resolved handle"
	logMessageHandleFailed   = "handle resolution failed"
	logFieldHandle           = "handle"
	logFieldAccountID        = "account_id"
)

var (
	// ErrEmptyHandle indicates a blank handle was supplied.
	ErrEmptyHandle = errors.New(errMessageEmptyHandle)
	// ErrMissingLookup indicates the resolver was constructed without an IDLookup.
	ErrMissingLookup = errors.New(errMessageMissingLookup)
)

// IDLookup resolves a screen name to a numeric account identifier.
type IDLookup interface {
	LookupUserID(ctx context.Context, screenName string) (string, error)
}

// AccountRecord captures the resolved identifier for a handle.
type AccountRecord struct {
	UserName  string
	AccountID string
}

// Result represents the outcome of a resolve attempt.
type Result struct {
	Record AccountRecord
	Err    error
}

// Config customizes a Resolver instance.
type Config struct {
	Lookup        IDLookup
	MaxConcurrent int
	Logger        *zap.Logger
}

// Resolver resolves handles into numeric account identifiers, caching every outcome.
type Resolver struct {
	lookup      IDLookup
	workerCount int
	logger      *zap.Logger
	cache       map[string]cacheEntry
	cacheMutex  sync.RWMutex
	flightGroup singleflight.Group
}

type cacheEntry struct {
	record AccountRecord
	err    error
}

// NewResolver constructs a Resolver around the supplied lookup.
func NewResolver(configuration Config) (*Resolver, error) {
	if configuration.Lookup == nil {
		return nil, ErrMissingLookup
	}
	workerCount := configuration.MaxConcurrent
	if workerCount <= 0 {
		workerCount = defaultWorkerConcurrency
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup:      configuration.Lookup,
		workerCount: workerCount,
		logger:      logger,
		cache:       make(map[string]cacheEntry),
	}, nil
}

// NormalizeHandle strips the leading @ and surrounding whitespace and lowercases the name.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), handlePrefix))
}

// ResolveMany resolves a batch of handles using a bounded worker pool.
// Results are keyed by normalized handle.
func (resolver *Resolver) ResolveMany(ctx context.Context, handleValues []string) map[string]Result {
	uniqueHandles := uniqueHandles(handleValues)
	results := make(map[string]Result, len(uniqueHandles))
	if len(uniqueHandles) == 0 {
		return results
	}

	var (
		resultsMutex sync.Mutex
		group        errgroup.Group
	)
	group.SetLimit(resolver.workerCount)
	for _, handle := range uniqueHandles {
		handle := handle
		group.Go(func() error {
			record, err := resolver.ResolveHandle(ctx, handle)
			resultsMutex.Lock()
			results[handle] = Result{Record: record, Err: err}
			resultsMutex.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// ResolveHandle resolves a single handle into its numeric account identifier.
func (resolver *Resolver) ResolveHandle(ctx context.Context, handle string) (AccountRecord, error) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return AccountRecord{}, ErrEmptyHandle
	}

	resolver.cacheMutex.RLock()
	if entry, ok := resolver.cache[normalized]; ok {
		resolver.cacheMutex.RUnlock()
		return entry.record, entry.err
	}
	resolver.cacheMutex.RUnlock()

	resultChannel := resolver.flightGroup.DoChan(normalized, func() (interface{}, error) {
		resolver.cacheMutex.RLock()
		entry, cached := resolver.cache[normalized]
		resolver.cacheMutex.RUnlock()
		if cached {
			return entry.record, entry.err
		}
		record, lookupErr := resolver.fetchRecord(ctx, normalized)
		if ctx.Err() == nil {
			resolver.cacheMutex.Lock()
			resolver.cache[normalized] = cacheEntry{record: record, err: lookupErr}
			resolver.cacheMutex.Unlock()
		}
		return record, lookupErr
	})

	select {
	case <-ctx.Done():
		return AccountRecord{}, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			return AccountRecord{}, result.Err
		}
		record, _ := result.Val.(AccountRecord)
		return record, nil
	}
}

func (resolver *Resolver) fetchRecord(ctx context.Context, normalized string) (AccountRecord, error) {
	accountID, err := resolver.lookup.LookupUserID(ctx, normalized)
	if err != nil {
		resolver.logger.Warn(logMessageHandleFailed, zap.String(logFieldHandle, normalized), zap.Error(err))
		return AccountRecord{UserName: normalized}, err
	}
	resolver.logger.Debug(logMessageHandleResolved, zap.String(logFieldHandle, normalized), zap.String(logFieldAccountID, accountID))
	return AccountRecord{UserName: normalized, AccountID: accountID}, nil
}

func uniqueHandles(handleValues []string) []string {
	unique := make([]string, 0, len(handleValues))
	seen := make(map[string]struct{}, len(handleValues))
	for _, handle := range handleValues {
		normalized := NormalizeHandle(handle)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		unique = append(unique, normalized)
	}
	return unique
}
