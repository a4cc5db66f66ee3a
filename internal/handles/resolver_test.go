package handles_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/twaio/twaio/internal/handles"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	resolverTestHandlePrimary           = "example"
	resolverTestHandleSecondary         = "second"
	resolverTestHandleMissing           = "missing"
	resolverTestAccountIDPrimary        = "10001"
	resolverTestAccountIDSecondary      = "10002"
	resolverTestErrorMessageMissing     = "no stub lookup response for handle"
	resolverTestLogMessageHandleFailure = "handle resolution failed"
)

type recordingLookup struct {
	responses map[string]string
	errors    map[string]error
	delay     time.Duration
	mu        sync.Mutex
	calls     map[string]int
}

func newRecordingLookup(responses map[string]string, errors map[string]error) *recordingLookup {
	return &recordingLookup{
		responses: responses,
		errors:    errors,
		calls:     make(map[string]int),
	}
}

func (lookup *recordingLookup) LookupUserID(ctx context.Context, screenName string) (string, error) {
	lookup.mu.Lock()
	lookup.calls[screenName]++
	lookup.mu.Unlock()

	if lookup.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lookup.delay):
		}
	}
	if lookupErr, exists := lookup.errors[screenName]; exists {
		return "", lookupErr
	}
	if accountID, exists := lookup.responses[screenName]; exists {
		return accountID, nil
	}
	return "", fmt.Errorf("%s %s", resolverTestErrorMessageMissing, screenName)
}

func (lookup *recordingLookup) callCount(screenName string) int {
	lookup.mu.Lock()
	defer lookup.mu.Unlock()
	return lookup.calls[screenName]
}

func TestNewResolverRequiresLookup(t *testing.T) {
	_, err := handles.NewResolver(handles.Config{})
	if !errors.Is(err, handles.ErrMissingLookup) {
		t.Fatalf("expected ErrMissingLookup, got %v", err)
	}
}

func TestResolverResolveHandle(t *testing.T) {
	t.Parallel()

	lookupFailure := errors.New("lookup failure")
	testCases := []struct {
		name              string
		handle            string
		expectedError     error
		expectedUserName  string
		expectedAccountID string
	}{
		{
			name:              "plain handle",
			handle:            resolverTestHandlePrimary,
			expectedUserName:  resolverTestHandlePrimary,
			expectedAccountID: resolverTestAccountIDPrimary,
		},
		{
			name:              "prefixed mixed case handle",
			handle:            "  @Example ",
			expectedUserName:  resolverTestHandlePrimary,
			expectedAccountID: resolverTestAccountIDPrimary,
		},
		{
			name:          "empty handle",
			handle:        " @ ",
			expectedError: handles.ErrEmptyHandle,
		},
		{
			name:          "lookup failure",
			handle:        resolverTestHandleMissing,
			expectedError: lookupFailure,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			lookup := newRecordingLookup(
				map[string]string{resolverTestHandlePrimary: resolverTestAccountIDPrimary},
				map[string]error{resolverTestHandleMissing: lookupFailure},
			)
			resolver, err := handles.NewResolver(handles.Config{Lookup: lookup, MaxConcurrent: 2})
			if err != nil {
				t.Fatalf("create resolver: %v", err)
			}

			record, resolveErr := resolver.ResolveHandle(context.Background(), testCase.handle)
			if testCase.expectedError != nil {
				if !errors.Is(resolveErr, testCase.expectedError) {
					t.Fatalf("expected %v, got %v", testCase.expectedError, resolveErr)
				}
				return
			}
			if resolveErr != nil {
				t.Fatalf("unexpected error: %v", resolveErr)
			}
			if record.UserName != testCase.expectedUserName {
				t.Fatalf("unexpected username: %s", record.UserName)
			}
			if record.AccountID != testCase.expectedAccountID {
				t.Fatalf("unexpected account id: %s", record.AccountID)
			}
		})
	}
}

func TestResolverResolveManyDeduplicates(t *testing.T) {
	lookup := newRecordingLookup(map[string]string{
		resolverTestHandlePrimary:   resolverTestAccountIDPrimary,
		resolverTestHandleSecondary: resolverTestAccountIDSecondary,
	}, nil)
	resolver, err := handles.NewResolver(handles.Config{Lookup: lookup, MaxConcurrent: 3})
	if err != nil {
		t.Fatalf("create resolver: %v", err)
	}

	handleValues := []string{
		resolverTestHandlePrimary,
		"@" + resolverTestHandlePrimary,
		"SECOND",
		"",
		resolverTestHandleSecondary,
		resolverTestHandleMissing,
	}
	results := resolver.ResolveMany(context.Background(), handleValues)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[resolverTestHandlePrimary].Record.AccountID != resolverTestAccountIDPrimary {
		t.Fatalf("unexpected primary result %+v", results[resolverTestHandlePrimary])
	}
	if results[resolverTestHandleSecondary].Record.AccountID != resolverTestAccountIDSecondary {
		t.Fatalf("unexpected secondary result %+v", results[resolverTestHandleSecondary])
	}
	if results[resolverTestHandleMissing].Err == nil {
		t.Fatalf("expected missing handle to carry an error")
	}
	for _, handle := range []string{resolverTestHandlePrimary, resolverTestHandleSecondary} {
		if lookup.callCount(handle) != 1 {
			t.Fatalf("expected single lookup for %s, got %d", handle, lookup.callCount(handle))
		}
	}
}

func TestResolverCachesResultsAndErrors(t *testing.T) {
	lookup := newRecordingLookup(map[string]string{resolverTestHandlePrimary: resolverTestAccountIDPrimary}, nil)
	resolver, err := handles.NewResolver(handles.Config{Lookup: lookup})
	if err != nil {
		t.Fatalf("create resolver: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if _, resolveErr := resolver.ResolveHandle(context.Background(), resolverTestHandlePrimary); resolveErr != nil {
			t.Fatalf("resolution %d failed: %v", attempt, resolveErr)
		}
		if _, resolveErr := resolver.ResolveHandle(context.Background(), resolverTestHandleMissing); resolveErr == nil {
			t.Fatalf("expected missing handle error on attempt %d", attempt)
		}
	}
	if lookup.callCount(resolverTestHandlePrimary) != 1 {
		t.Fatalf("expected cached response to avoid duplicate lookup, got %d calls", lookup.callCount(resolverTestHandlePrimary))
	}
	if lookup.callCount(resolverTestHandleMissing) != 1 {
		t.Fatalf("expected cached error to avoid duplicate lookup, got %d calls", lookup.callCount(resolverTestHandleMissing))
	}
}

func TestResolverCollapsesConcurrentLookups(t *testing.T) {
	lookup := newRecordingLookup(map[string]string{resolverTestHandlePrimary: resolverTestAccountIDPrimary}, nil)
	lookup.delay = 20 * time.Millisecond
	resolver, err := handles.NewResolver(handles.Config{Lookup: lookup})
	if err != nil {
		t.Fatalf("create resolver: %v", err)
	}

	var waitGroup sync.WaitGroup
	for index := 0; index < 5; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, resolveErr := resolver.ResolveHandle(context.Background(), resolverTestHandlePrimary); resolveErr != nil {
				t.Errorf("resolve: %v", resolveErr)
			}
		}()
	}
	waitGroup.Wait()
	if lookup.callCount(resolverTestHandlePrimary) != 1 {
		t.Fatalf("expected concurrent lookups to collapse, got %d calls", lookup.callCount(resolverTestHandlePrimary))
	}
}

func TestResolverLogsLookupFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lookup := newRecordingLookup(nil, nil)
	resolver, err := handles.NewResolver(handles.Config{Lookup: lookup, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("create resolver: %v", err)
	}

	if _, resolveErr := resolver.ResolveHandle(context.Background(), resolverTestHandleMissing); resolveErr == nil {
		t.Fatalf("expected lookup error")
	}
	entries := logs.FilterMessage(resolverTestLogMessageHandleFailure).All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["handle"] != resolverTestHandleMissing {
		t.Fatalf("unexpected log context %v", entries[0].ContextMap())
	}
}
