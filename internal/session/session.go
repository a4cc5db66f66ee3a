package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twaio/twaio/internal/handles"
	"github.com/twaio/twaio/internal/scrape"
	"github.com/twaio/twaio/internal/xclient"
)

const (
	tweetIDPattern            = `^\d+$`
	tweetURLPattern           = `/status(?:es)?/(\d+)`
	errMessageMissingClient   = "session requires an account client"
	errMessageMissingDataDir  = "session requires a data directory"
	errMessageInvalidTweetRef = "value is neither a tweet id nor a tweet url"
	errMessageResolveTarget   = "resolve scrape target"
	errMessageOpenOutput      = "open scrape output"
	errMessageCreateScraper   = "create scraper"
	errMessageReadImage       = "read image"
	errMessageResolveHandle   = "resolve handle"
	logMessageScrapeStarted   = "scrape started"
	logMessageScrapeFinished  = "scrape finished"
	logFieldKind              = "kind"
	logFieldTarget            = "target"
	logFieldAmount            = "amount"
	logFieldOutputPath        = "output_path"
	logFieldWritten           = "written"
	logFieldExhausted         = "exhausted"
)

var (
	// ErrInvalidTweetReference indicates a value that is neither a numeric id nor a status url.
	ErrInvalidTweetReference = errors.New(errMessageInvalidTweetRef)

	errMissingClient  = errors.New(errMessageMissingClient)
	errMissingDataDir = errors.New(errMessageMissingDataDir)

	tweetIDRegex  = regexp.MustCompile(tweetIDPattern)
	tweetURLRegex = regexp.MustCompile(tweetURLPattern)
)

// AccountClient is the authenticated API surface a session drives.
type AccountClient interface {
	scrape.TimelineClient
	handles.IDLookup
	Follow(ctx context.Context, userID string) error
	Like(ctx context.Context, tweetID string) error
	Retweet(ctx context.Context, tweetID string) error
	Quote(ctx context.Context, text string, tweetURL string) error
	Reply(ctx context.Context, text string, tweetID string) error
	SendDirectMessage(ctx context.Context, userID string, text string) error
	UpdateProfile(ctx context.Context, update xclient.ProfileUpdate) error
	UpdateProfileImage(ctx context.Context, image []byte) error
	UpdateProfileBanner(ctx context.Context, image []byte) error
	VerifyCredentials(ctx context.Context) (xclient.Identity, error)
}

// Config customizes a Session instance.
type Config struct {
	Client        AccountClient
	DataDirectory string
	MaxConcurrent int
	Logger        *zap.Logger
	Clock         func() time.Time
}

// ScrapeOptions describes one scrape invocation.
type ScrapeOptions struct {
	Kind   string
	Target string
	Amount int
	Cursor string
}

// ScrapeHooks receives updates while a scrape runs. Both hooks are optional.
type ScrapeHooks struct {
	OnOutput   func(path string)
	OnProgress func(progress scrape.Progress)
}

// ScrapeOutcome summarizes a scrape that produced an output file.
type ScrapeOutcome struct {
	Result     scrape.Result
	OutputPath string
}

// Session runs account operations for one authenticated account.
type Session struct {
	client        AccountClient
	resolver      *handles.Resolver
	dataDirectory string
	logger        *zap.Logger
	clock         func() time.Time
}

// New constructs a Session around client.
func New(configuration Config) (*Session, error) {
	if configuration.Client == nil {
		return nil, errMissingClient
	}
	if strings.TrimSpace(configuration.DataDirectory) == "" {
		return nil, errMissingDataDir
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = time.Now
	}
	resolver, err := handles.NewResolver(handles.Config{
		Lookup:        configuration.Client,
		MaxConcurrent: configuration.MaxConcurrent,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		client:        configuration.Client,
		resolver:      resolver,
		dataDirectory: configuration.DataDirectory,
		logger:        logger,
		clock:         clock,
	}, nil
}

// Scrape runs one relationship scrape into a new timestamped file under the data directory.
// The outcome carries the partial result and output path even when an error is returned.
func (session *Session) Scrape(ctx context.Context, options ScrapeOptions, hooks ScrapeHooks) (ScrapeOutcome, error) {
	target, err := scrape.LookupTarget(options.Kind)
	if err != nil {
		return ScrapeOutcome{}, err
	}
	targetID, err := session.scrapeTargetID(ctx, target, options.Target)
	if err != nil {
		return ScrapeOutcome{}, fmt.Errorf("%s: %w", errMessageResolveTarget, err)
	}

	scraper, err := scrape.NewScraper(scrape.Config{
		Fetcher:  scrape.NewTimelineFetcher(session.client),
		Logger:   session.logger,
		Observer: hooks.OnProgress,
	})
	if err != nil {
		return ScrapeOutcome{}, fmt.Errorf("%s: %w", errMessageCreateScraper, err)
	}

	sink, err := scrape.NewFileSink(session.dataDirectory, target, session.clock())
	if err != nil {
		return ScrapeOutcome{}, fmt.Errorf("%s: %w", errMessageOpenOutput, err)
	}
	defer sink.Close()
	outcome := ScrapeOutcome{OutputPath: sink.Path()}
	if hooks.OnOutput != nil {
		hooks.OnOutput(outcome.OutputPath)
	}

	session.logger.Info(logMessageScrapeStarted,
		zap.String(logFieldKind, string(target.Kind)),
		zap.String(logFieldTarget, options.Target),
		zap.Int(logFieldAmount, options.Amount),
		zap.String(logFieldOutputPath, outcome.OutputPath))

	outcome.Result, err = scraper.Run(ctx, scrape.Request{
		Target:   target,
		TargetID: targetID,
		Amount:   options.Amount,
		Cursor:   options.Cursor,
	}, sink)

	session.logger.Info(logMessageScrapeFinished,
		zap.String(logFieldKind, string(target.Kind)),
		zap.Int(logFieldWritten, outcome.Result.Written),
		zap.Bool(logFieldExhausted, outcome.Result.Exhausted),
		zap.String(logFieldOutputPath, outcome.OutputPath))
	return outcome, err
}

// Follow resolves handle and follows the account.
func (session *Session) Follow(ctx context.Context, handle string) error {
	record, err := session.resolveHandle(ctx, handle)
	if err != nil {
		return err
	}
	return session.client.Follow(ctx, record.AccountID)
}

// SendDirectMessage resolves handle and sends text to the account.
func (session *Session) SendDirectMessage(ctx context.Context, handle string, text string) error {
	record, err := session.resolveHandle(ctx, handle)
	if err != nil {
		return err
	}
	return session.client.SendDirectMessage(ctx, record.AccountID, text)
}

// Like likes the referenced tweet.
func (session *Session) Like(ctx context.Context, tweetReference string) error {
	tweetID, err := ParseTweetID(tweetReference)
	if err != nil {
		return err
	}
	return session.client.Like(ctx, tweetID)
}

// Retweet retweets the referenced tweet.
func (session *Session) Retweet(ctx context.Context, tweetReference string) error {
	tweetID, err := ParseTweetID(tweetReference)
	if err != nil {
		return err
	}
	return session.client.Retweet(ctx, tweetID)
}

// Reply posts text in reply to the referenced tweet.
func (session *Session) Reply(ctx context.Context, tweetReference string, text string) error {
	tweetID, err := ParseTweetID(tweetReference)
	if err != nil {
		return err
	}
	return session.client.Reply(ctx, text, tweetID)
}

// Quote posts text quoting tweetURL.
func (session *Session) Quote(ctx context.Context, tweetURL string, text string) error {
	return session.client.Quote(ctx, text, strings.TrimSpace(tweetURL))
}

// UpdateProfile changes the non-empty profile fields.
func (session *Session) UpdateProfile(ctx context.Context, update xclient.ProfileUpdate) error {
	return session.client.UpdateProfile(ctx, update)
}

// UpdateProfileImage uploads the image file at path as the profile picture.
func (session *Session) UpdateProfileImage(ctx context.Context, path string) error {
	image, err := readImage(path)
	if err != nil {
		return err
	}
	return session.client.UpdateProfileImage(ctx, image)
}

// UpdateProfileBanner uploads the image file at path as the profile banner.
func (session *Session) UpdateProfileBanner(ctx context.Context, path string) error {
	image, err := readImage(path)
	if err != nil {
		return err
	}
	return session.client.UpdateProfileBanner(ctx, image)
}

// Lookup resolves a batch of handles to account identifiers.
func (session *Session) Lookup(ctx context.Context, handleValues []string) map[string]handles.Result {
	return session.resolver.ResolveMany(ctx, handleValues)
}

// ParseTweetID accepts a numeric tweet id or a status url and returns the id.
func ParseTweetID(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if tweetIDRegex.MatchString(trimmed) {
		return trimmed, nil
	}
	if match := tweetURLRegex.FindStringSubmatch(trimmed); len(match) == 2 {
		return match[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTweetReference, value)
}

func (session *Session) scrapeTargetID(ctx context.Context, target scrape.Target, value string) (string, error) {
	if target.ResolvesUser {
		record, err := session.resolveHandle(ctx, value)
		if err != nil {
			return "", err
		}
		return record.AccountID, nil
	}
	return ParseTweetID(value)
}

func (session *Session) resolveHandle(ctx context.Context, handle string) (handles.AccountRecord, error) {
	record, err := session.resolver.ResolveHandle(ctx, handle)
	if err != nil {
		return handles.AccountRecord{}, fmt.Errorf("%s %s: %w", errMessageResolveHandle, handle, err)
	}
	return record, nil
}

func readImage(path string) ([]byte, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadImage, err)
	}
	return image, nil
}
