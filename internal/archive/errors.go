package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceMissing is returned when the file an operation targets does
	// not exist. Archival moves the source, so a repeated archive call for
	// the same path fails with this error as well.
	ErrSourceMissing = errors.New("source file missing")
)

// BatchDeleteError reports a bulk delete where some files failed. The
// remaining deletions are not aborted; the error carries the success count
// and the itemized failure reasons.
type BatchDeleteError struct {
	Succeeded int
	Total     int
	Failures  []string
}

func (e *BatchDeleteError) Error() string {
	return fmt.Sprintf("deleted %d/%d files; failures: %s",
		e.Succeeded, e.Total, strings.Join(e.Failures, "; "))
}
