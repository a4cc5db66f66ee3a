package scrape

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	scrapedDirectoryName       = "scraped"
	outputFileTimeLayout       = "02-01-2006_15h-04m-05s"
	outputFileExtension        = ".txt"
	outputFileCollisionFormat  = "%s_%d%s"
	maxOutputFileCollisions    = 100
	outputDirectoryPermissions = 0o755
	outputFilePermissions      = 0o644
	handleLineSeparator        = "\n"
	errMessageCreateOutputDir  = "create output directory"
	errMessageCreateOutputFile = "create output file"
	errMessageSinkClosed       = "output sink is closed"
)

var errSinkClosed = errors.New(errMessageSinkClosed)

// OutputPath returns the timestamped file a scrape of target started at startedAt writes to.
func OutputPath(dataDirectory string, target Target, startedAt time.Time) string {
	fileName := startedAt.Format(outputFileTimeLayout) + outputFileExtension
	return filepath.Join(dataDirectory, scrapedDirectoryName, target.OutputDirectory, fileName)
}

// FileSink appends one handle per line to a file as pages arrive.
type FileSink struct {
	mutex sync.Mutex
	file  *os.File
	path  string
}

// NewFileSink creates the directory and an empty output file for a scrape started at startedAt.
// A numeric suffix is added when a file for the same second already exists.
func NewFileSink(dataDirectory string, target Target, startedAt time.Time) (*FileSink, error) {
	basePath := OutputPath(dataDirectory, target, startedAt)
	if err := os.MkdirAll(filepath.Dir(basePath), outputDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateOutputDir, err)
	}

	candidatePath := basePath
	for attempt := 2; ; attempt++ {
		file, err := os.OpenFile(candidatePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, outputFilePermissions)
		if err == nil {
			return &FileSink{file: file, path: candidatePath}, nil
		}
		if !errors.Is(err, os.ErrExist) || attempt > maxOutputFileCollisions {
			return nil, fmt.Errorf("%s: %w", errMessageCreateOutputFile, err)
		}
		candidatePath = fmt.Sprintf(outputFileCollisionFormat, strings.TrimSuffix(basePath, outputFileExtension), attempt, outputFileExtension)
	}
}

// Path reports the file the sink writes to.
func (sink *FileSink) Path() string {
	return sink.path
}

// WriteHandles appends handles, one per line.
func (sink *FileSink) WriteHandles(handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.file == nil {
		return errSinkClosed
	}
	_, err := sink.file.WriteString(strings.Join(handles, handleLineSeparator) + handleLineSeparator)
	return err
}

// Close releases the underlying file.
func (sink *FileSink) Close() error {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.file == nil {
		return nil
	}
	err := sink.file.Close()
	sink.file = nil
	return err
}
