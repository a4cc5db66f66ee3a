package scrape_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/twaio/twaio/internal/scrape"
	"github.com/twaio/twaio/internal/xclient"
)

type recordingTimelineClient struct {
	requests []xclient.TimelineRequest
	body     []byte
}

func (client *recordingTimelineClient) FetchTimeline(_ context.Context, request xclient.TimelineRequest) ([]byte, error) {
	client.requests = append(client.requests, request)
	return client.body, nil
}

func TestTimelineFetcherBuildsRequest(t *testing.T) {
	t.Parallel()

	target, err := scrape.LookupTarget("retweeters")
	if err != nil {
		t.Fatalf("lookup target: %v", err)
	}
	client := &recordingTimelineClient{body: []byte(`{"data":{}}`)}
	fetcher := scrape.NewTimelineFetcher(client)

	body, err := fetcher.FetchPage(context.Background(), scrape.PageQuery{Target: target, TargetID: "1700", Count: 20, Cursor: "abc"})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if string(body) != `{"data":{}}` {
		t.Fatalf("unexpected body %s", body)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(client.requests))
	}
	request := client.requests[0]
	if request.QueryID != target.QueryID || request.Operation != "Retweeters" || request.Features != target.Features {
		t.Fatalf("unexpected request %+v", request)
	}

	var variables map[string]any
	if err := json.Unmarshal([]byte(request.Variables), &variables); err != nil {
		t.Fatalf("decode variables: %v", err)
	}
	if variables["tweetId"] != "1700" || variables["count"] != float64(20) || variables["cursor"] != "abc" || variables["includePromotedContent"] != false {
		t.Fatalf("unexpected variables %v", variables)
	}
}

func TestEncodeVariablesOmitsEmptyCursor(t *testing.T) {
	t.Parallel()

	target, err := scrape.LookupTarget("followers")
	if err != nil {
		t.Fatalf("lookup target: %v", err)
	}
	encoded, err := scrape.EncodeVariables(scrape.PageQuery{Target: target, TargetID: "42", Count: 1})
	if err != nil {
		t.Fatalf("encode variables: %v", err)
	}
	if encoded != `{"count":1,"includePromotedContent":false,"userId":"42"}` {
		t.Fatalf("unexpected variables %s", encoded)
	}
}
