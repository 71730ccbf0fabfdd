package ingest

import (
	"errors"
	"fmt"

	"github.com/gwd/patchwork/patchdb"
)

// Tally counts the outcomes of a run of Ingest calls.
type Tally struct {
	Stored  int
	Skipped int // Skipped, no project, no content, or already stored
	Failed  int // Ingest returned an error, or a record could not be saved
}

func duplicatesOnly(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, patchdb.ErrMsgidPresent) {
			return false
		}
	}
	return true
}

func (t *Tally) Add(res *Result, err error) {
	switch {
	case err != nil:
		t.Failed++
	case len(res.Errors) > 0 && !duplicatesOnly(res.Errors):
		t.Failed++
	case res.Status == StatusStored && len(res.Errors) == 0:
		t.Stored++
	default:
		t.Skipped++
	}
}

func (t Tally) String() string {
	return fmt.Sprintf("%d stored, %d skipped, %d failed", t.Stored, t.Skipped, t.Failed)
}
