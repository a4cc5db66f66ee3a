package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	accountFieldSeparator    = ":"
	accountCommentPrefix     = "#"
	minimumAccountFields     = 3
	emailPattern             = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	errMessageInvalidAccount = "account line has a wrong format"
	errMessageReadAccounts   = "read accounts"
	accountLineErrorFormat   = "%w: line %d"
)

var (
	// ErrInvalidAccountLine indicates a line with fewer than three colon-separated fields.
	ErrInvalidAccountLine = errors.New(errMessageInvalidAccount)

	emailRegex = regexp.MustCompile(emailPattern)
)

// Credentials holds the login fields of one accounts.txt line.
type Credentials struct {
	Username string
	Password string
	Email    string
	Phone    string
}

// ParseAccountLine parses username:password:email?:phone?.
// The third field is an email when it looks like one, otherwise a phone number.
func ParseAccountLine(line string) (Credentials, error) {
	fields := strings.Split(strings.TrimSpace(line), accountFieldSeparator)
	if len(fields) < minimumAccountFields {
		return Credentials{}, ErrInvalidAccountLine
	}
	credentials := Credentials{
		Username: strings.TrimSpace(fields[0]),
		Password: fields[1],
	}
	if credentials.Username == "" {
		return Credentials{}, ErrInvalidAccountLine
	}
	thirdField := strings.TrimSpace(fields[2])
	if emailRegex.MatchString(thirdField) {
		credentials.Email = thirdField
		if len(fields) > minimumAccountFields {
			credentials.Phone = strings.TrimSpace(fields[3])
		}
	} else {
		credentials.Phone = thirdField
	}
	return credentials, nil
}

// ParseAccounts reads one account per line, skipping blank and # comment lines.
// The first malformed line aborts parsing with its 1-based line number.
func ParseAccounts(reader io.Reader) ([]Credentials, error) {
	scanner := bufio.NewScanner(reader)
	var parsed []Credentials
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, accountCommentPrefix) {
			continue
		}
		credentials, err := ParseAccountLine(line)
		if err != nil {
			return nil, fmt.Errorf(accountLineErrorFormat, err, lineNumber)
		}
		parsed = append(parsed, credentials)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadAccounts, err)
	}
	return parsed, nil
}
