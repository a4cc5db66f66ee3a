package scrape

import (
	"bytes"
	"regexp"
)

const (
	handlePattern       = `"screen_name":"([^"]+)"`
	handlePrefix        = "@"
	cursorMarker        = `"TimelineTimelineCursor","value":"`
	cursorTerminator    = '"'
	responseErrorMarker = `"errors"`
)

var (
	handleRegex             = regexp.MustCompile(handlePattern)
	cursorMarkerBytes       = []byte(cursorMarker)
	responseErrorMarkerByte = []byte(responseErrorMarker)
)

// Page is the handle list and continuation cursor carried by one raw response.
type Page struct {
	Items      []string
	NextCursor string
	HasMore    bool
}

// ParsePage extracts handles and the next cursor from a raw response body.
// Bodies carrying the error marker yield ErrResponseMarker.
func ParsePage(body []byte) (Page, error) {
	if ContainsErrorMarker(body) {
		return Page{}, ErrResponseMarker
	}
	nextCursor := ExtractCursor(body)
	return Page{
		Items:      ExtractHandles(body),
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// ExtractHandles returns every screen_name value in body as an @handle, in order and without deduplication.
func ExtractHandles(body []byte) []string {
	matches := handleRegex.FindAllSubmatch(body, -1)
	handles := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) < 2 || len(match[1]) == 0 {
			continue
		}
		handles = append(handles, handlePrefix+string(match[1]))
	}
	return handles
}

// ExtractCursor returns the first timeline cursor value in body, or an empty string.
func ExtractCursor(body []byte) string {
	markerIndex := bytes.Index(body, cursorMarkerBytes)
	if markerIndex == -1 {
		return ""
	}
	remainder := body[markerIndex+len(cursorMarkerBytes):]
	endIndex := bytes.IndexByte(remainder, cursorTerminator)
	if endIndex == -1 {
		return ""
	}
	return string(remainder[:endIndex])
}

// ContainsErrorMarker reports whether body carries the "errors" marker.
func ContainsErrorMarker(body []byte) bool {
	return bytes.Contains(body, responseErrorMarkerByte)
}
