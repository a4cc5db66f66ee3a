package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	probePageSize            = 1
	errMessageResponseMarker = "response contains error marker"
	errMessageMissingCursor  = "response did not contain a pagination cursor"
	errMessageMissingFetcher = "scraper requires a page fetcher"
	errMessageMissingSink    = "scrape requires an output sink"
	errMessageEmptyTargetID  = "scrape target id cannot be empty"
	errMessageInvalidAmount  = "scrape amount must be positive"
	errMessageFetchPage      = "fetch page"
	errMessageFetchProbe     = "fetch initial cursor"
	errMessageWriteHandles   = "write handles"
	logMessageProbe          = "requesting initial cursor"
	logMessagePageScraped    = "scraped page"
	logMessageQuotaReached   = "all accounts have been scraped"
	logMessageListExhausted  = "list exhausted before quota"
	logFieldKind             = "kind"
	logFieldTargetID         = "target_id"
	logFieldWritten          = "written"
	logFieldAmount           = "amount"
	logFieldCursor           = "cursor"
	logFieldPageHandles      = "page_handles"
	logFieldPages            = "pages"
)

var (
	// ErrResponseMarker indicates a page whose body carries the "errors" marker.
	ErrResponseMarker = errors.New(errMessageResponseMarker)
	// ErrMissingCursor indicates the initial probe returned no pagination cursor.
	ErrMissingCursor = errors.New(errMessageMissingCursor)
	// ErrMissingFetcher indicates the scraper was constructed without a PageFetcher.
	ErrMissingFetcher = errors.New(errMessageMissingFetcher)
	// ErrMissingSink indicates Run was called without an output sink.
	ErrMissingSink = errors.New(errMessageMissingSink)
	// ErrEmptyTargetID indicates a request without a user or tweet identifier.
	ErrEmptyTargetID = errors.New(errMessageEmptyTargetID)
	// ErrInvalidAmount indicates a request whose quota is not positive.
	ErrInvalidAmount = errors.New(errMessageInvalidAmount)
)

// PageQuery identifies one page request against a target list.
type PageQuery struct {
	Target   Target
	TargetID string
	Count    int
	Cursor   string
}

// PageFetcher retrieves the raw body of one page.
type PageFetcher interface {
	FetchPage(ctx context.Context, query PageQuery) ([]byte, error)
}

// Sink receives handles in the order they are scraped.
type Sink interface {
	WriteHandles(handles []string) error
}

// Request describes one scrape run.
type Request struct {
	Target   Target
	TargetID string
	PageSize int
	Amount   int
	Cursor   string
}

// Progress reports the state of a run after each page.
type Progress struct {
	Written int
	Amount  int
	Cursor  string
	Pages   int
}

// Result summarizes a finished run.
type Result struct {
	Written   int
	Cursor    string
	Pages     int
	Exhausted bool
}

// Config customizes a Scraper instance.
type Config struct {
	Fetcher  PageFetcher
	Logger   *zap.Logger
	Observer func(Progress)
}

// Scraper walks a cursor-paginated list and streams handles into a Sink until the quota is met.
type Scraper struct {
	fetcher  PageFetcher
	logger   *zap.Logger
	observer func(Progress)
}

// NewScraper constructs a Scraper around the supplied fetcher.
func NewScraper(configuration Config) (*Scraper, error) {
	if configuration.Fetcher == nil {
		return nil, ErrMissingFetcher
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher:  configuration.Fetcher,
		logger:   logger,
		observer: configuration.Observer,
	}, nil
}

// Run scrapes up to request.Amount handles into sink.
//
// Without a starting cursor a one-item probe obtains it; the probe's handles are not written.
// The run ends when the quota is reached, when a page has no cursor, no handles or a cursor
// equal to the one requested (Exhausted), or on the first error. A page carrying the error
// marker writes nothing and yields ErrResponseMarker. Handles written before an error stay in
// the sink and are counted in the returned Result.
func (scraper *Scraper) Run(ctx context.Context, request Request, sink Sink) (Result, error) {
	if sink == nil {
		return Result{}, ErrMissingSink
	}
	targetID := strings.TrimSpace(request.TargetID)
	if targetID == "" {
		return Result{}, ErrEmptyTargetID
	}
	if request.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = request.Target.PageSize
	}

	logger := scraper.logger.With(zap.String(logFieldKind, string(request.Target.Kind)), zap.String(logFieldTargetID, targetID))
	query := PageQuery{Target: request.Target, TargetID: targetID}

	cursor := strings.TrimSpace(request.Cursor)
	if cursor == "" {
		logger.Debug(logMessageProbe)
		query.Count = probePageSize
		probe, err := scraper.fetchPage(ctx, query)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", errMessageFetchProbe, err)
		}
		if probe.NextCursor == "" {
			return Result{}, ErrMissingCursor
		}
		cursor = probe.NextCursor
	}

	result := Result{Cursor: cursor}
	query.Count = pageSize
	for result.Written < request.Amount {
		query.Cursor = cursor
		page, err := scraper.fetchPage(ctx, query)
		if err != nil {
			return result, fmt.Errorf("%s: %w", errMessageFetchPage, err)
		}
		result.Pages++

		items := page.Items
		if remaining := request.Amount - result.Written; len(items) > remaining {
			items = items[:remaining]
		}
		if len(items) > 0 {
			if writeErr := sink.WriteHandles(items); writeErr != nil {
				return result, fmt.Errorf("%s: %w", errMessageWriteHandles, writeErr)
			}
			result.Written += len(items)
		}

		advanced := page.NextCursor != "" && page.NextCursor != cursor
		if advanced {
			cursor = page.NextCursor
			result.Cursor = cursor
		}
		logger.Info(logMessagePageScraped,
			zap.Int(logFieldWritten, result.Written),
			zap.Int(logFieldAmount, request.Amount),
			zap.Int(logFieldPageHandles, len(page.Items)),
			zap.String(logFieldCursor, cursor))
		scraper.notify(Progress{Written: result.Written, Amount: request.Amount, Cursor: cursor, Pages: result.Pages})

		if result.Written >= request.Amount {
			break
		}
		if !advanced || len(page.Items) == 0 {
			result.Exhausted = true
			logger.Info(logMessageListExhausted, zap.Int(logFieldWritten, result.Written), zap.Int(logFieldPages, result.Pages))
			return result, nil
		}
	}

	logger.Info(logMessageQuotaReached, zap.Int(logFieldWritten, result.Written), zap.Int(logFieldPages, result.Pages))
	return result, nil
}

func (scraper *Scraper) fetchPage(ctx context.Context, query PageQuery) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	body, err := scraper.fetcher.FetchPage(ctx, query)
	if ContainsErrorMarker(body) {
		if err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrResponseMarker, err)
		}
		return Page{}, ErrResponseMarker
	}
	if err != nil {
		return Page{}, err
	}
	return ParsePage(body)
}

func (scraper *Scraper) notify(progress Progress) {
	if scraper.observer != nil {
		scraper.observer(progress)
	}
}
