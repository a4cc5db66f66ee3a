package scrape_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/twaio/twaio/internal/scrape"
)

func TestExtractHandles(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		expected []string
	}{
		{
			name:     "keeps document order and duplicates",
			body:     `{"a":{"screen_name":"first"},"b":{"screen_name":"second"},"c":{"screen_name":"first"}}`,
			expected: []string{"@first", "@second", "@first"},
		},
		{
			name:     "ignores empty names and other keys",
			body:     `{"screen_name":"","name":"Display","screen_name":"valid_1"}`,
			expected: []string{"@valid_1"},
		},
		{
			name:     "no handles",
			body:     `{"data":{}}`,
			expected: []string{},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			actual := scrape.ExtractHandles([]byte(testCase.body))
			if strings.Join(actual, ",") != strings.Join(testCase.expected, ",") || len(actual) != len(testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, actual)
			}
		})
	}
}

func TestExtractCursor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "first cursor wins",
			body:     `[{"entryType":"TimelineTimelineCursor","value":"1755|bottom","cursorType":"Bottom"},{"entryType":"TimelineTimelineCursor","value":"-1|top"}]`,
			expected: "1755|bottom",
		},
		{
			name:     "missing cursor",
			body:     `{"entryType":"TimelineTimelineItem"}`,
			expected: "",
		},
		{
			name:     "unterminated cursor",
			body:     `{"entryType":"TimelineTimelineCursor","value":"truncated`,
			expected: "",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if actual := scrape.ExtractCursor([]byte(testCase.body)); actual != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, actual)
			}
		})
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	page, err := scrape.ParsePage([]byte(`{"screen_name":"one","entryType":"TimelineTimelineCursor","value":"next"}`))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0] != "@one" || page.NextCursor != "next" || !page.HasMore {
		t.Fatalf("unexpected page %+v", page)
	}

	lastPage, err := scrape.ParsePage([]byte(`{"screen_name":"one"}`))
	if err != nil {
		t.Fatalf("parse last page: %v", err)
	}
	if lastPage.HasMore {
		t.Fatalf("expected page without cursor to report no more pages")
	}

	if _, err := scrape.ParsePage([]byte(`{"errors":[{"message":"boom"}],"screen_name":"one"}`)); !errors.Is(err, scrape.ErrResponseMarker) {
		t.Fatalf("expected ErrResponseMarker, got %v", err)
	}
}
