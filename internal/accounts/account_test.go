package accounts_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/twaio/twaio/internal/accounts"
)

func TestParseAccountLine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		line          string
		expected      accounts.Credentials
		expectedError error
	}{
		{
			name:     "email and phone",
			line:     "alice:secret:alice@example.com:+33600000000",
			expected: accounts.Credentials{Username: "alice", Password: "secret", Email: "alice@example.com", Phone: "+33600000000"},
		},
		{
			name:     "email only",
			line:     "bob:hunter2:bob@mail.example.org",
			expected: accounts.Credentials{Username: "bob", Password: "hunter2", Email: "bob@mail.example.org"},
		},
		{
			name:     "third field that is not an email is a phone",
			line:     "carol:pw:0611223344",
			expected: accounts.Credentials{Username: "carol", Password: "pw", Phone: "0611223344"},
		},
		{
			name:     "fourth field ignored after a phone",
			line:     "dave:pw:0611223344:extra",
			expected: accounts.Credentials{Username: "dave", Password: "pw", Phone: "0611223344"},
		},
		{
			name:          "two fields",
			line:          "erin:pw",
			expectedError: accounts.ErrInvalidAccountLine,
		},
		{
			name:          "empty username",
			line:          ":pw:erin@example.com",
			expectedError: accounts.ErrInvalidAccountLine,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			credentials, err := accounts.ParseAccountLine(testCase.line)
			if testCase.expectedError != nil {
				if !errors.Is(err, testCase.expectedError) {
					t.Fatalf("expected %v, got %v", testCase.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if credentials != testCase.expected {
				t.Fatalf("expected %+v, got %+v", testCase.expected, credentials)
			}
		})
	}
}

func TestParseAccountsReportsLineNumber(t *testing.T) {
	t.Parallel()

	parsed, err := accounts.ParseAccounts(strings.NewReader("# comment\r\nalice:pw:alice@example.com\r\n\r\nbob:pw:0600\r\n"))
	if err != nil {
		t.Fatalf("parse accounts: %v", err)
	}
	if len(parsed) != 2 || parsed[0].Username != "alice" || parsed[1].Phone != "0600" {
		t.Fatalf("unexpected accounts %+v", parsed)
	}

	_, err = accounts.ParseAccounts(strings.NewReader("alice:pw:alice@example.com\nbroken\n"))
	if !errors.Is(err, accounts.ErrInvalidAccountLine) {
		t.Fatalf("expected ErrInvalidAccountLine, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected error to name line 2, got %v", err)
	}
}
