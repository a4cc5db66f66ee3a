package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twaio/twaio/internal/scrape"
	"github.com/twaio/twaio/internal/session"
)

const (
	scrapeCommandUse          = "scrape"
	scrapeCommandShort        = "Scrape a relationship list into a timestamped file"
	scrapeUserTargetUse       = "%s <screen_name>"
	scrapeTweetTargetUse      = "%s <tweet_id|tweet_url>"
	scrapeUserTargetShort     = "Scrape the %s of an account"
	scrapeTweetTargetShort    = "Scrape the %s of a tweet"
	flagAmountName            = "amount"
	flagAmountDescription     = "Number of handles to write"
	flagCursorName            = "cursor"
	flagCursorDescription     = "Resume from a cursor reported by an earlier run"
	errMessageAmountRequired  = "--amount must be greater than zero"
	scrapeOutputFormat        = "Writing %s\n"
	scrapeSummaryFormat       = "Wrote %d of %d handles to %s\n"
	scrapeExhaustedMessage    = "The list ran out before the requested amount\n"
	scrapeResumeCursorFormat  = "Resume with --cursor %s\n"
	scrapeFailedSummaryFormat = "Stopped after %d handles in %s\n"
)

var errAmountRequired = errors.New(errMessageAmountRequired)

func (application *Application) newScrapeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   scrapeCommandUse,
		Short: scrapeCommandShort,
	}
	for _, kind := range scrape.Kinds() {
		command.AddCommand(application.newScrapeKindCommand(kind))
	}
	return command
}

func (application *Application) newScrapeKindCommand(kind scrape.Kind) *cobra.Command {
	target, _ := scrape.LookupTarget(string(kind))
	use, short := scrapeTweetTargetUse, scrapeTweetTargetShort
	if target.ResolvesUser {
		use, short = scrapeUserTargetUse, scrapeUserTargetShort
	}

	command := &cobra.Command{
		Use:   fmt.Sprintf(use, kind),
		Short: fmt.Sprintf(short, kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			amount, _ := command.Flags().GetInt(flagAmountName)
			if amount <= 0 {
				return errAmountRequired
			}
			cursor, _ := command.Flags().GetString(flagCursorName)
			options := session.ScrapeOptions{Kind: string(kind), Target: args[0], Amount: amount, Cursor: cursor}
			return application.runWithSession(command, func(ctx context.Context, accountSession *session.Session) error {
				return application.runScrape(ctx, accountSession, options)
			})
		},
	}
	command.Flags().Int(flagAmountName, 0, flagAmountDescription)
	command.Flags().String(flagCursorName, "", flagCursorDescription)
	return command
}

func (application *Application) runScrape(ctx context.Context, accountSession *session.Session, options session.ScrapeOptions) error {
	outcome, err := accountSession.Scrape(ctx, options, session.ScrapeHooks{
		OnOutput: func(path string) {
			application.printf(scrapeOutputFormat, path)
		},
	})
	if err != nil {
		if outcome.OutputPath != "" {
			fmt.Fprintf(application.dependencies.Stderr, scrapeFailedSummaryFormat, outcome.Result.Written, outcome.OutputPath)
		}
		if outcome.Result.Cursor != "" {
			fmt.Fprintf(application.dependencies.Stderr, scrapeResumeCursorFormat, outcome.Result.Cursor)
		}
		return err
	}

	application.printf(scrapeSummaryFormat, outcome.Result.Written, options.Amount, outcome.OutputPath)
	if outcome.Result.Exhausted {
		application.printf(scrapeExhaustedMessage)
	}
	return nil
}
