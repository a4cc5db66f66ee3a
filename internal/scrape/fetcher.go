package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twaio/twaio/internal/xclient"
)

const (
	variableCount                  = "count"
	variableCursor                 = "cursor"
	variableIncludePromotedContent = "includePromotedContent"
	errMessageEncodeVariables      = "encode timeline variables"
)

// TimelineClient issues GraphQL timeline queries.
type TimelineClient interface {
	FetchTimeline(ctx context.Context, request xclient.TimelineRequest) ([]byte, error)
}

// TimelineFetcher adapts a TimelineClient into a PageFetcher.
type TimelineFetcher struct {
	client TimelineClient
}

// NewTimelineFetcher wraps client.
func NewTimelineFetcher(client TimelineClient) *TimelineFetcher {
	return &TimelineFetcher{client: client}
}

// FetchPage builds the query variables for the target and returns the raw body.
func (fetcher *TimelineFetcher) FetchPage(ctx context.Context, query PageQuery) ([]byte, error) {
	variables, err := EncodeVariables(query)
	if err != nil {
		return nil, err
	}
	return fetcher.client.FetchTimeline(ctx, xclient.TimelineRequest{
		QueryID:   query.Target.QueryID,
		Operation: query.Target.Operation,
		Variables: variables,
		Features:  query.Target.Features,
	})
}

// EncodeVariables renders the GraphQL variables object for query.
func EncodeVariables(query PageQuery) (string, error) {
	variables := map[string]any{
		query.Target.TargetVariable:    query.TargetID,
		variableCount:                  query.Count,
		variableIncludePromotedContent: false,
	}
	if query.Cursor != "" {
		variables[variableCursor] = query.Cursor
	}
	encoded, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageEncodeVariables, err)
	}
	return string(encoded), nil
}
