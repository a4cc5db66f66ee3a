package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/twaio/twaio/internal/session"
)

const (
	followCommandUse     = "follow <screen_name>"
	followCommandShort   = "Follow an account"
	likeCommandUse       = "like <tweet_id|tweet_url>"
	likeCommandShort     = "Like a tweet"
	retweetCommandUse    = "retweet <tweet_id|tweet_url>"
	retweetCommandShort  = "Retweet a tweet"
	quoteCommandUse      = "quote <tweet_url> <text>"
	quoteCommandShort    = "Retweet a tweet with a comment"
	replyCommandUse      = "reply <tweet_id|tweet_url> <text>"
	replyCommandShort    = "Reply to a tweet"
	dmCommandUse         = "dm <screen_name> <text>"
	dmCommandShort       = "Send a direct message"
	followedFormat       = "Followed %s\n"
	likedFormat          = "Liked %s\n"
	retweetedFormat      = "Retweeted %s\n"
	quotedFormat         = "Quoted %s\n"
	repliedFormat        = "Replied to %s\n"
	directMessagedFormat = "Sent a message to %s\n"
)

// sessionAction runs one session operation over the positional arguments.
type sessionAction func(ctx context.Context, accountSession *session.Session, args []string) error

func (application *Application) newActionCommand(use string, short string, argumentCount int, doneFormat string, action sessionAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(argumentCount),
		RunE: func(command *cobra.Command, args []string) error {
			return application.runWithSession(command, func(ctx context.Context, accountSession *session.Session) error {
				if err := action(ctx, accountSession, args); err != nil {
					return err
				}
				application.printf(doneFormat, args[0])
				return nil
			})
		},
	}
}

func (application *Application) newFollowCommand() *cobra.Command {
	return application.newActionCommand(followCommandUse, followCommandShort, 1, followedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.Follow(ctx, args[0])
		})
}

func (application *Application) newLikeCommand() *cobra.Command {
	return application.newActionCommand(likeCommandUse, likeCommandShort, 1, likedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.Like(ctx, args[0])
		})
}

func (application *Application) newRetweetCommand() *cobra.Command {
	return application.newActionCommand(retweetCommandUse, retweetCommandShort, 1, retweetedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.Retweet(ctx, args[0])
		})
}

func (application *Application) newQuoteCommand() *cobra.Command {
	return application.newActionCommand(quoteCommandUse, quoteCommandShort, 2, quotedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.Quote(ctx, args[0], args[1])
		})
}

func (application *Application) newReplyCommand() *cobra.Command {
	return application.newActionCommand(replyCommandUse, replyCommandShort, 2, repliedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.Reply(ctx, args[0], args[1])
		})
}

func (application *Application) newDirectMessageCommand() *cobra.Command {
	return application.newActionCommand(dmCommandUse, dmCommandShort, 2, directMessagedFormat,
		func(ctx context.Context, accountSession *session.Session, args []string) error {
			return accountSession.SendDirectMessage(ctx, args[0], args[1])
		})
}
