package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/twaio/twaio/internal/accounts"
	"github.com/twaio/twaio/internal/session"
	"github.com/twaio/twaio/internal/xclient"
)

const (
	rootCommandUse                 = "twaio"
	rootCommandShortDescription    = "Drive one X/Twitter web session: scrape relationship lists, act, manage tokens"
	envPrefix                      = "TWAIO"
	defaultConfigFileName          = "twaio.yaml"
	flagConfigName                 = "config"
	flagConfigDescription          = "Configuration file (defaults to twaio.yaml when present)"
	flagAccountName                = "account"
	flagAccountDescription         = "Stored account to act as"
	flagDataDirName                = "data-dir"
	flagDataDirDescription         = "Directory holding acc_tokens.json and scraped output"
	flagLogLevelName               = "log-level"
	flagLogLevelDescription        = "Log level (debug, info, warn, error)"
	flagBearerTokenName            = "bearer-token"
	flagBearerTokenDescription     = "Web client bearer token"
	flagWebBaseURLName             = "web-base-url"
	flagWebBaseURLDescription      = "Base URL for GraphQL web endpoints"
	flagAPIBaseURLName             = "api-base-url"
	flagAPIBaseURLDescription      = "Base URL for REST endpoints"
	flagRequestsPerSecondName      = "requests-per-second"
	flagRequestsPerSecondDesc      = "Outbound request rate; negative disables pacing"
	flagMaxConcurrentName          = "max-concurrent"
	flagMaxConcurrentDescription   = "Concurrent screen-name lookups"
	defaultDataDirectory           = "data"
	defaultLogLevel                = "info"
	errMessageReadConfig           = "read configuration"
	errMessageLoggerCreate         = "create logger"
	errMessageParseLogLevel        = "parse log level"
	errMessageOpenStore            = "open account store"
	errMessageCreateClient         = "create account client"
	errMessageCreateSession        = "create session"
	errMessageNoAccountWithTokens  = "no stored account has tokens; run accounts tokens first"
	errMessageAmbiguousAccount     = "several stored accounts have tokens; choose one with --account"
	errMessageAccountWithoutTokens = "stored account has no tokens"
	logMessageConfigLoaded         = "configuration loaded"
	logMessageSessionReady         = "session ready"
	logFieldConfigFile             = "config_file"
	logFieldAccount                = "account"
)

var (
	errNoAccountWithTokens  = errors.New(errMessageNoAccountWithTokens)
	errAmbiguousAccount     = errors.New(errMessageAmbiguousAccount)
	errAccountWithoutTokens = errors.New(errMessageAccountWithoutTokens)
)

// Dependencies lists the collaborators the CLI builds sessions from.
type Dependencies struct {
	NewAccountClient func(configuration xclient.Config) (session.AccountClient, error)
	NewLogger        func(level string) (*zap.Logger, error)
	Clock            func() time.Time
	Stdout           io.Writer
	Stderr           io.Writer
}

// Application owns the command tree together with its configuration and logger.
type Application struct {
	dependencies  Dependencies
	configuration *viper.Viper
	logger        *zap.Logger
}

// NewApplication constructs an Application backed by the real API client.
func NewApplication() *Application {
	return NewApplicationWithDependencies(newDefaultDependencies())
}

// NewApplicationWithDependencies fills unset dependencies with their defaults.
func NewApplicationWithDependencies(dependencies Dependencies) *Application {
	defaultDependencies := newDefaultDependencies()

	if dependencies.NewAccountClient == nil {
		dependencies.NewAccountClient = defaultDependencies.NewAccountClient
	}
	if dependencies.NewLogger == nil {
		dependencies.NewLogger = defaultDependencies.NewLogger
	}
	if dependencies.Clock == nil {
		dependencies.Clock = defaultDependencies.Clock
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = defaultDependencies.Stdout
	}
	if dependencies.Stderr == nil {
		dependencies.Stderr = defaultDependencies.Stderr
	}

	return &Application{dependencies: dependencies, configuration: viper.New(), logger: zap.NewNop()}
}

// Command builds the root command with every subcommand attached.
func (application *Application) Command() *cobra.Command {
	command := &cobra.Command{
		Use:               rootCommandUse,
		Short:             rootCommandShortDescription,
		SilenceUsage:      true,
		PersistentPreRunE: application.initialize,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = application.logger.Sync()
		},
	}
	command.SetOut(application.dependencies.Stdout)
	command.SetErr(application.dependencies.Stderr)

	flags := command.PersistentFlags()
	flags.String(flagConfigName, "", flagConfigDescription)
	flags.String(flagAccountName, "", flagAccountDescription)
	flags.String(flagDataDirName, defaultDataDirectory, flagDataDirDescription)
	flags.String(flagLogLevelName, defaultLogLevel, flagLogLevelDescription)
	flags.String(flagBearerTokenName, "", flagBearerTokenDescription)
	flags.String(flagWebBaseURLName, "", flagWebBaseURLDescription)
	flags.String(flagAPIBaseURLName, "", flagAPIBaseURLDescription)
	flags.Float64(flagRequestsPerSecondName, 0, flagRequestsPerSecondDesc)
	flags.Int(flagMaxConcurrentName, 0, flagMaxConcurrentDescription)
	for _, flagName := range []string{
		flagConfigName, flagAccountName, flagDataDirName, flagLogLevelName, flagBearerTokenName,
		flagWebBaseURLName, flagAPIBaseURLName, flagRequestsPerSecondName, flagMaxConcurrentName,
	} {
		application.bindFlag(command, flagName)
	}

	command.AddCommand(
		application.newAccountsCommand(),
		application.newScrapeCommand(),
		application.newFollowCommand(),
		application.newLikeCommand(),
		application.newRetweetCommand(),
		application.newQuoteCommand(),
		application.newReplyCommand(),
		application.newDirectMessageCommand(),
		application.newProfileCommand(),
		application.newLookupCommand(),
		application.newServeCommand(),
	)
	return command
}

func (application *Application) bindFlag(command *cobra.Command, flagName string) {
	flag := command.PersistentFlags().Lookup(flagName)
	if flag == nil {
		flag = command.Flags().Lookup(flagName)
	}
	cobra.CheckErr(application.configuration.BindPFlag(flagName, flag))
}

func (application *Application) initialize(*cobra.Command, []string) error {
	application.configuration.SetEnvPrefix(envPrefix)
	application.configuration.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	application.configuration.AutomaticEnv()

	configFile := application.configuration.GetString(flagConfigName)
	if configFile == "" {
		if _, statErr := os.Stat(defaultConfigFileName); statErr == nil {
			configFile = defaultConfigFileName
		}
	}
	if configFile != "" {
		application.configuration.SetConfigFile(configFile)
		if err := application.configuration.ReadInConfig(); err != nil {
			return fmt.Errorf("%s: %w", errMessageReadConfig, err)
		}
	}

	logger, err := application.dependencies.NewLogger(application.configuration.GetString(flagLogLevelName))
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	application.logger = logger
	if configFile != "" {
		logger.Debug(logMessageConfigLoaded, zap.String(logFieldConfigFile, configFile))
	}
	return nil
}

func (application *Application) dataDirectory() string {
	return application.configuration.GetString(flagDataDirName)
}

func (application *Application) openStore() (*accounts.Store, error) {
	store, err := accounts.NewStore(accounts.StoreConfig{
		Path:   accounts.StorePath(application.dataDirectory()),
		Clock:  application.dependencies.Clock,
		Logger: application.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenStore, err)
	}
	return store, nil
}

// selectAccount returns the --account record, or the only stored record holding tokens.
func (application *Application) selectAccount(store *accounts.Store) (accounts.Record, error) {
	if username := strings.TrimSpace(application.configuration.GetString(flagAccountName)); username != "" {
		record, err := store.Get(username)
		if err != nil {
			return accounts.Record{}, err
		}
		if !record.HasTokens() {
			return accounts.Record{}, fmt.Errorf("%w: %s", errAccountWithoutTokens, username)
		}
		return record, nil
	}

	records, err := store.List()
	if err != nil {
		return accounts.Record{}, err
	}
	var candidates []accounts.Record
	for _, record := range records {
		if record.HasTokens() {
			candidates = append(candidates, record)
		}
	}
	switch len(candidates) {
	case 0:
		return accounts.Record{}, errNoAccountWithTokens
	case 1:
		return candidates[0], nil
	default:
		return accounts.Record{}, errAmbiguousAccount
	}
}

func (application *Application) newClient(record accounts.Record) (session.AccountClient, error) {
	client, err := application.dependencies.NewAccountClient(xclient.Config{
		WebBaseURL:        application.configuration.GetString(flagWebBaseURLName),
		APIBaseURL:        application.configuration.GetString(flagAPIBaseURLName),
		BearerToken:       application.configuration.GetString(flagBearerTokenName),
		Credentials:       xclient.Credentials{Username: record.Username, AuthToken: record.AuthToken, CSRFToken: record.CSRFToken},
		UserAgent:         record.UserAgent,
		RequestsPerSecond: application.configuration.GetFloat64(flagRequestsPerSecondName),
		Logger:            application.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateClient, err)
	}
	return client, nil
}

// openSession builds a session for the selected stored account.
func (application *Application) openSession() (*session.Session, error) {
	store, err := application.openStore()
	if err != nil {
		return nil, err
	}
	record, err := application.selectAccount(store)
	if err != nil {
		return nil, err
	}
	client, err := application.newClient(record)
	if err != nil {
		return nil, err
	}
	accountSession, err := session.New(session.Config{
		Client:        client,
		DataDirectory: application.dataDirectory(),
		MaxConcurrent: application.configuration.GetInt(flagMaxConcurrentName),
		Logger:        application.logger.With(zap.String(logFieldAccount, record.Username)),
		Clock:         application.dependencies.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateSession, err)
	}
	application.logger.Debug(logMessageSessionReady, zap.String(logFieldAccount, record.Username))
	return accountSession, nil
}

// runWithSession opens the session and hands it to action with the command context.
func (application *Application) runWithSession(command *cobra.Command, action func(ctx context.Context, accountSession *session.Session) error) error {
	accountSession, err := application.openSession()
	if err != nil {
		return err
	}
	return action(command.Context(), accountSession)
}

func (application *Application) printf(format string, args ...any) {
	fmt.Fprintf(application.dependencies.Stdout, format, args...)
}

func newDefaultDependencies() Dependencies {
	return Dependencies{
		NewAccountClient: func(configuration xclient.Config) (session.AccountClient, error) {
			return xclient.NewClient(configuration)
		},
		NewLogger: newProductionLogger,
		Clock:     time.Now,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

func newProductionLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseLogLevel, err)
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
	return loggerConfig.Build()
}
