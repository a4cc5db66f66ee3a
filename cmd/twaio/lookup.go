package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twaio/twaio/internal/handles"
	"github.com/twaio/twaio/internal/session"
)

const (
	lookupCommandUse         = "lookup [screen_name...]"
	lookupCommandShort       = "Resolve screen names to numeric account ids as CSV"
	flagInName               = "in"
	flagInDescription        = "File with one screen name per line"
	flagOutName              = "out"
	flagOutDescription       = "Output CSV path (stdout when empty)"
	lookupCommentPrefix      = "#"
	errMessageNoHandles      = "no screen names to resolve"
	errMessageReadHandles    = "read screen names"
	errMessageWriteCSV       = "write csv"
	lookupWroteOutputFormat  = "Wrote %s (%d rows, %d failed)\n"
	csvColumnHandle          = "handle"
	csvColumnAccountID       = "id"
	csvColumnError           = "error"
	lookupOutputPermissions  = 0o644
	lookupOutputCreateFlags  = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	lookupHandleOutputPrefix = "@"
)

var (
	errNoHandles = errors.New(errMessageNoHandles)

	csvHeaderColumns = []string{csvColumnHandle, csvColumnAccountID, csvColumnError}
)

func (application *Application) newLookupCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   lookupCommandUse,
		Short: lookupCommandShort,
		RunE: func(command *cobra.Command, args []string) error {
			inputPath, _ := command.Flags().GetString(flagInName)
			outputPath, _ := command.Flags().GetString(flagOutName)

			handleValues := append([]string(nil), args...)
			if inputPath != "" {
				fileHandles, err := readHandles(inputPath)
				if err != nil {
					return err
				}
				handleValues = append(handleValues, fileHandles...)
			}
			ordered := orderedHandles(handleValues)
			if len(ordered) == 0 {
				return errNoHandles
			}

			return application.runWithSession(command, func(ctx context.Context, accountSession *session.Session) error {
				results := accountSession.Lookup(ctx, ordered)
				return application.writeLookupResults(outputPath, ordered, results)
			})
		},
	}
	command.Flags().String(flagInName, "", flagInDescription)
	command.Flags().String(flagOutName, "", flagOutDescription)
	return command
}

func (application *Application) writeLookupResults(outputPath string, ordered []string, results map[string]handles.Result) error {
	writer := application.dependencies.Stdout
	if outputPath != "" {
		file, err := os.OpenFile(outputPath, lookupOutputCreateFlags, lookupOutputPermissions)
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageWriteCSV, err)
		}
		defer file.Close()
		writer = file
	}

	failed, err := writeLookupCSV(writer, ordered, results)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteCSV, err)
	}
	if outputPath != "" {
		application.printf(lookupWroteOutputFormat, outputPath, len(ordered), failed)
	}
	return nil
}

func writeLookupCSV(writer io.Writer, ordered []string, results map[string]handles.Result) (int, error) {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(csvHeaderColumns); err != nil {
		return 0, err
	}
	failed := 0
	for _, handle := range ordered {
		result := results[handle]
		errorText := ""
		if result.Err != nil {
			errorText = result.Err.Error()
			failed++
		}
		if err := csvWriter.Write([]string{lookupHandleOutputPrefix + handle, result.Record.AccountID, errorText}); err != nil {
			return failed, err
		}
	}
	csvWriter.Flush()
	return failed, csvWriter.Error()
}

func readHandles(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadHandles, err)
	}
	defer file.Close()

	var handleValues []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, lookupCommentPrefix) {
			continue
		}
		handleValues = append(handleValues, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadHandles, err)
	}
	return handleValues, nil
}

// orderedHandles normalizes and de-duplicates handles, keeping first-seen order.
func orderedHandles(handleValues []string) []string {
	seen := make(map[string]struct{}, len(handleValues))
	ordered := make([]string, 0, len(handleValues))
	for _, value := range handleValues {
		normalized := handles.NormalizeHandle(value)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		ordered = append(ordered, normalized)
	}
	return ordered
}
