package services

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidState        = errors.New("invalid state for this operation")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrSyncInProgress      = errors.New("platform sync already in progress")
	ErrMissingCredentials  = errors.New("missing credentials")
	ErrUnsupportedPlatform = errors.New("unsupported platform type")
)

const (
	maxErrorLength = 1000
	maxStackLength = 2000

	msgNotProcessed   = "unit was not processed during collection task execution"
	msgDidNotComplete = "collection task did not complete for this unit"
	msgNoMatchingVM   = "no matching virtual machine found on platform"
)

// truncate cuts s to at most n bytes on a rune boundary. Invalid UTF-8 is
// replaced since the store only accepts valid text.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
