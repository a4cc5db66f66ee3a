package scrape_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/twaio/twaio/internal/scrape"
)

const (
	scraperTestTargetID      = "44196397"
	scraperTestProbeCursor   = "cursor-probe"
	scraperTestCursorSecond  = "cursor-2"
	scraperTestCursorThird   = "cursor-3"
	scraperTestCursorFourth  = "cursor-4"
	scraperTestStartCursor   = "cursor-resume"
	scraperTestErrorResponse = `{"errors":[{"message":"Rate limit exceeded","code":88}]}`
)

type scriptedResponse struct {
	body string
	err  error
}

type scriptedFetcher struct {
	mutex     sync.Mutex
	responses []scriptedResponse
	queries   []scrape.PageQuery
}

func (fetcher *scriptedFetcher) FetchPage(_ context.Context, query scrape.PageQuery) ([]byte, error) {
	fetcher.mutex.Lock()
	defer fetcher.mutex.Unlock()
	fetcher.queries = append(fetcher.queries, query)
	if len(fetcher.responses) == 0 {
		return nil, fmt.Errorf("unexpected page request with cursor %q", query.Cursor)
	}
	response := fetcher.responses[0]
	fetcher.responses = fetcher.responses[1:]
	var body []byte
	if response.body != "" {
		body = []byte(response.body)
	}
	return body, response.err
}

type memorySink struct {
	writes  [][]string
	handles []string
	err     error
}

func (sink *memorySink) WriteHandles(handles []string) error {
	if sink.err != nil {
		return sink.err
	}
	sink.writes = append(sink.writes, append([]string(nil), handles...))
	sink.handles = append(sink.handles, handles...)
	return nil
}

func timelineBody(cursor string, names ...string) string {
	entries := make([]string, 0, len(names)+1)
	for _, name := range names {
		entries = append(entries, fmt.Sprintf(`{"content":{"user_results":{"result":{"legacy":{"screen_name":"%s","name":"Name %s"}}}}}`, name, name))
	}
	if cursor != "" {
		entries = append(entries, fmt.Sprintf(`{"content":{"entryType":"TimelineTimelineCursor","value":"%s","cursorType":"Bottom"}}`, cursor))
	}
	return `{"data":{"user":{"result":{"timeline":{"instructions":[{"entries":[` + strings.Join(entries, ",") + `]}]}}}}}`
}

func handleNames(prefix string, count int) []string {
	names := make([]string, count)
	for index := range names {
		names[index] = fmt.Sprintf("%s%d", prefix, index+1)
	}
	return names
}

func prefixed(names []string) []string {
	handles := make([]string, len(names))
	for index, name := range names {
		handles[index] = "@" + name
	}
	return handles
}

func newScraper(t *testing.T, fetcher scrape.PageFetcher, observer func(scrape.Progress)) *scrape.Scraper {
	t.Helper()
	scraper, err := scrape.NewScraper(scrape.Config{Fetcher: fetcher, Observer: observer})
	if err != nil {
		t.Fatalf("create scraper: %v", err)
	}
	return scraper
}

func followersTarget(t *testing.T) scrape.Target {
	t.Helper()
	target, err := scrape.LookupTarget(string(scrape.KindFollowers))
	if err != nil {
		t.Fatalf("lookup target: %v", err)
	}
	return target
}

func TestScraperWritesAvailableHandlesUpToQuota(t *testing.T) {
	t.Parallel()

	firstPage := handleNames("first", 3)
	secondPage := handleNames("second", 3)
	thirdPage := handleNames("third", 3)
	pages := []scriptedResponse{
		{body: timelineBody(scraperTestProbeCursor, "probe_only")},
		{body: timelineBody(scraperTestCursorSecond, firstPage...)},
		{body: timelineBody(scraperTestCursorThird, secondPage...)},
		{body: timelineBody(scraperTestCursorFourth, thirdPage...)},
	}

	testCases := []struct {
		name              string
		amount            int
		expectedHandles   []string
		expectedRequests  int
		expectedExhausted bool
		expectedCursor    string
	}{
		{
			name:             "quota inside the last page trims that page",
			amount:           7,
			expectedHandles:  append(append(prefixed(firstPage), prefixed(secondPage)...), "@third1"),
			expectedRequests: 4,
			expectedCursor:   scraperTestCursorFourth,
		},
		{
			name:             "quota on a page boundary stops without another request",
			amount:           6,
			expectedHandles:  append(prefixed(firstPage), prefixed(secondPage)...),
			expectedRequests: 3,
			expectedCursor:   scraperTestCursorThird,
		},
		{
			name:             "quota smaller than the first page",
			amount:           2,
			expectedHandles:  prefixed(firstPage[:2]),
			expectedRequests: 2,
			expectedCursor:   scraperTestCursorSecond,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{responses: append([]scriptedResponse(nil), pages...)}
			sink := &memorySink{}
			scraper := newScraper(t, fetcher, nil)

			result, err := scraper.Run(context.Background(), scrape.Request{
				Target:   followersTarget(t),
				TargetID: scraperTestTargetID,
				Amount:   testCase.amount,
			}, sink)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if result.Written != testCase.amount || len(sink.handles) != testCase.amount {
				t.Fatalf("expected %d handles, result %d, sink %d", testCase.amount, result.Written, len(sink.handles))
			}
			if strings.Join(sink.handles, ",") != strings.Join(testCase.expectedHandles, ",") {
				t.Fatalf("unexpected handles %v", sink.handles)
			}
			if len(fetcher.queries) != testCase.expectedRequests {
				t.Fatalf("expected %d requests, got %d", testCase.expectedRequests, len(fetcher.queries))
			}
			if result.Exhausted != testCase.expectedExhausted {
				t.Fatalf("unexpected exhausted flag %v", result.Exhausted)
			}
			if result.Cursor != testCase.expectedCursor {
				t.Fatalf("expected cursor %s, got %s", testCase.expectedCursor, result.Cursor)
			}
		})
	}
}

func TestScraperProbeAndPageQueries(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{body: timelineBody(scraperTestProbeCursor, "probe_only")},
		{body: timelineBody(scraperTestCursorSecond, "alpha", "beta")},
	}}
	sink := &memorySink{}
	target := followersTarget(t)
	scraper := newScraper(t, fetcher, nil)

	if _, err := scraper.Run(context.Background(), scrape.Request{Target: target, TargetID: " " + scraperTestTargetID + " ", Amount: 2}, sink); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.queries) != 2 {
		t.Fatalf("expected probe and one page, got %d requests", len(fetcher.queries))
	}
	probe := fetcher.queries[0]
	if probe.Count != 1 || probe.Cursor != "" || probe.TargetID != scraperTestTargetID {
		t.Fatalf("unexpected probe query %+v", probe)
	}
	page := fetcher.queries[1]
	if page.Count != target.PageSize || page.Cursor != scraperTestProbeCursor {
		t.Fatalf("unexpected page query %+v", page)
	}
	for _, handle := range sink.handles {
		if handle == "@probe_only" {
			t.Fatalf("probe handles must not be written")
		}
	}
}

func TestScraperResumesFromSuppliedCursor(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{body: timelineBody(scraperTestCursorSecond, "alpha")},
	}}
	sink := &memorySink{}
	scraper := newScraper(t, fetcher, nil)

	_, err := scraper.Run(context.Background(), scrape.Request{
		Target:   followersTarget(t),
		TargetID: scraperTestTargetID,
		PageSize: 50,
		Amount:   1,
		Cursor:   scraperTestStartCursor,
	}, sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.queries) != 1 {
		t.Fatalf("expected no probe when a cursor is supplied, got %d requests", len(fetcher.queries))
	}
	if fetcher.queries[0].Cursor != scraperTestStartCursor || fetcher.queries[0].Count != 50 {
		t.Fatalf("unexpected query %+v", fetcher.queries[0])
	}
}

func TestScraperStopsWhenListIsExhausted(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		pages           []scriptedResponse
		expectedWritten int
	}{
		{
			name: "page without cursor",
			pages: []scriptedResponse{
				{body: timelineBody(scraperTestCursorSecond, "alpha", "beta")},
				{body: timelineBody("", "gamma")},
			},
			expectedWritten: 3,
		},
		{
			name: "cursor does not advance",
			pages: []scriptedResponse{
				{body: timelineBody(scraperTestStartCursor, "alpha")},
			},
			expectedWritten: 1,
		},
		{
			name: "page without handles",
			pages: []scriptedResponse{
				{body: timelineBody(scraperTestCursorSecond, "alpha")},
				{body: timelineBody(scraperTestCursorThird)},
			},
			expectedWritten: 1,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{responses: testCase.pages}
			sink := &memorySink{}
			scraper := newScraper(t, fetcher, nil)

			result, err := scraper.Run(context.Background(), scrape.Request{
				Target:   followersTarget(t),
				TargetID: scraperTestTargetID,
				Amount:   100,
				Cursor:   scraperTestStartCursor,
			}, sink)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !result.Exhausted {
				t.Fatalf("expected exhausted result")
			}
			if result.Written != testCase.expectedWritten || len(sink.handles) != testCase.expectedWritten {
				t.Fatalf("expected %d written, got %d (sink %d)", testCase.expectedWritten, result.Written, len(sink.handles))
			}
			if len(fetcher.queries) != len(testCase.pages) {
				t.Fatalf("expected %d requests, got %d", len(testCase.pages), len(fetcher.queries))
			}
		})
	}
}

func TestScraperStopsOnFirstErrorMarker(t *testing.T) {
	t.Parallel()

	markedPage := strings.Replace(timelineBody(scraperTestCursorThird, "leaked1", "leaked2"), `{"data"`, `{"errors":[{"message":"partial"}],"data"`, 1)
	testCases := []struct {
		name     string
		response scriptedResponse
	}{
		{name: "marker with handles", response: scriptedResponse{body: markedPage}},
		{name: "marker only", response: scriptedResponse{body: scraperTestErrorResponse}},
		{name: "marker returned alongside client error", response: scriptedResponse{body: scraperTestErrorResponse, err: errors.New("api error 88: Rate limit exceeded")}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{responses: []scriptedResponse{
				{body: timelineBody(scraperTestCursorSecond, "alpha", "beta")},
				testCase.response,
				{body: timelineBody(scraperTestCursorFourth, "never")},
			}}
			sink := &memorySink{}
			scraper := newScraper(t, fetcher, nil)

			result, err := scraper.Run(context.Background(), scrape.Request{
				Target:   followersTarget(t),
				TargetID: scraperTestTargetID,
				Amount:   100,
				Cursor:   scraperTestStartCursor,
			}, sink)
			if !errors.Is(err, scrape.ErrResponseMarker) {
				t.Fatalf("expected ErrResponseMarker, got %v", err)
			}
			if result.Written != 2 || strings.Join(sink.handles, ",") != "@alpha,@beta" {
				t.Fatalf("expected only first page handles, got %v (written %d)", sink.handles, result.Written)
			}
			if len(fetcher.queries) != 2 {
				t.Fatalf("expected loop to stop after marked page, got %d requests", len(fetcher.queries))
			}
			if result.Cursor != scraperTestCursorSecond {
				t.Fatalf("expected last good cursor, got %s", result.Cursor)
			}
		})
	}
}

func TestScraperProbeFailures(t *testing.T) {
	t.Parallel()

	transportFailure := errors.New("connection reset")
	testCases := []struct {
		name          string
		response      scriptedResponse
		expectedError error
	}{
		{name: "probe without cursor", response: scriptedResponse{body: timelineBody("", "alpha")}, expectedError: scrape.ErrMissingCursor},
		{name: "probe with error marker", response: scriptedResponse{body: scraperTestErrorResponse}, expectedError: scrape.ErrResponseMarker},
		{name: "probe transport failure", response: scriptedResponse{err: transportFailure}, expectedError: transportFailure},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{responses: []scriptedResponse{testCase.response}}
			sink := &memorySink{}
			scraper := newScraper(t, fetcher, nil)

			result, err := scraper.Run(context.Background(), scrape.Request{Target: followersTarget(t), TargetID: scraperTestTargetID, Amount: 10}, sink)
			if !errors.Is(err, testCase.expectedError) {
				t.Fatalf("expected %v, got %v", testCase.expectedError, err)
			}
			if result.Written != 0 || len(sink.writes) != 0 {
				t.Fatalf("expected nothing written, got %v", sink.handles)
			}
		})
	}
}

func TestScraperRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		request       scrape.Request
		sink          scrape.Sink
		expectedError error
	}{
		{name: "missing sink", request: scrape.Request{TargetID: scraperTestTargetID, Amount: 1}, expectedError: scrape.ErrMissingSink},
		{name: "empty target", request: scrape.Request{TargetID: "  ", Amount: 1}, sink: &memorySink{}, expectedError: scrape.ErrEmptyTargetID},
		{name: "zero amount", request: scrape.Request{TargetID: scraperTestTargetID}, sink: &memorySink{}, expectedError: scrape.ErrInvalidAmount},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{}
			scraper := newScraper(t, fetcher, nil)
			_, err := scraper.Run(context.Background(), testCase.request, testCase.sink)
			if !errors.Is(err, testCase.expectedError) {
				t.Fatalf("expected %v, got %v", testCase.expectedError, err)
			}
			if len(fetcher.queries) != 0 {
				t.Fatalf("expected no requests, got %d", len(fetcher.queries))
			}
		})
	}

	if _, err := scrape.NewScraper(scrape.Config{}); !errors.Is(err, scrape.ErrMissingFetcher) {
		t.Fatalf("expected ErrMissingFetcher, got %v", err)
	}
}

func TestScraperReportsProgressAndSinkFailures(t *testing.T) {
	t.Parallel()

	var progress []scrape.Progress
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{body: timelineBody(scraperTestCursorSecond, "alpha", "beta")},
		{body: timelineBody(scraperTestCursorThird, "gamma", "delta")},
	}}
	scraper := newScraper(t, fetcher, func(update scrape.Progress) { progress = append(progress, update) })

	if _, err := scraper.Run(context.Background(), scrape.Request{
		Target:   followersTarget(t),
		TargetID: scraperTestTargetID,
		Amount:   3,
		Cursor:   scraperTestStartCursor,
	}, &memorySink{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	expected := []scrape.Progress{
		{Written: 2, Amount: 3, Cursor: scraperTestCursorSecond, Pages: 1},
		{Written: 3, Amount: 3, Cursor: scraperTestCursorThird, Pages: 2},
	}
	if len(progress) != len(expected) {
		t.Fatalf("expected %d progress updates, got %d", len(expected), len(progress))
	}
	for index := range expected {
		if progress[index] != expected[index] {
			t.Fatalf("progress %d: expected %+v, got %+v", index, expected[index], progress[index])
		}
	}

	sinkFailure := errors.New("disk full")
	failingFetcher := &scriptedFetcher{responses: []scriptedResponse{{body: timelineBody(scraperTestCursorSecond, "alpha")}}}
	failingScraper := newScraper(t, failingFetcher, nil)
	_, err := failingScraper.Run(context.Background(), scrape.Request{
		Target:   followersTarget(t),
		TargetID: scraperTestTargetID,
		Amount:   3,
		Cursor:   scraperTestStartCursor,
	}, &memorySink{err: sinkFailure})
	if !errors.Is(err, sinkFailure) {
		t.Fatalf("expected sink failure, got %v", err)
	}
}

func TestScraperHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &scriptedFetcher{responses: []scriptedResponse{{body: timelineBody(scraperTestCursorSecond, "alpha")}}}
	scraper := newScraper(t, fetcher, nil)

	_, err := scraper.Run(ctx, scrape.Request{Target: followersTarget(t), TargetID: scraperTestTargetID, Amount: 1}, &memorySink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fetcher.queries) != 0 {
		t.Fatalf("expected no requests after cancellation, got %d", len(fetcher.queries))
	}
}
