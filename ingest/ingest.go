// Package ingest turns mailing-list messages into patch and comment
// records.
package ingest

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/emersion/go-message"
	"golang.org/x/net/html/charset"

	"github.com/gwd/patchwork/patchdb"
	"github.com/gwd/patchwork/patchparse"
)

func init() {
	// Let go-message convert any charset the HTML encoding tables know.
	message.CharsetReader = charset.NewReaderLabel
}

// Store is the part of the patch database the ingester needs.  Lookups
// return patchdb.ErrNotFound when there is no such record.
type Store interface {
	ProjectByListID(listid string) (*patchdb.Project, error)
	PatchByMsgid(msgid string) (*patchdb.Patch, error)
	PatchByID(id int64) (*patchdb.Patch, error)
	CommentByMsgid(msgid string) (*patchdb.Comment, error)
	UpsertPerson(person *patchdb.Person) error
	AddPatch(patch *patchdb.Patch) error
	AddComment(comment *patchdb.Comment) error
}

var DefaultListIDHeaders = []string{"List-ID", "X-Mailing-List"}

const hintHeader = "X-Patchwork-Hint"

type Ingester struct {
	Store         Store
	Split         patchparse.Splitter
	ListIDHeaders []string // Checked in order; the first one naming a known project wins
}

func NewIngester(store Store) *Ingester {
	return &Ingester{
		Store:         store,
		Split:         patchparse.Split,
		ListIDHeaders: DefaultListIDHeaders,
	}
}

type Status int

const (
	StatusSkipped   = Status(iota) // Missing required headers, or hinted to be ignored
	StatusNoProject                // No list-id header named a known project
	StatusNoContent                // Neither a patch nor a comment with a known parent
	StatusStored                   // A patch and/or comment was handed to the store
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusNoProject:
		return "no project"
	case StatusNoContent:
		return "no content"
	case StatusStored:
		return "stored"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Result struct {
	Status  Status
	Msgid   string
	Patch   *patchdb.Patch   // Saved patch, if any
	Comment *patchdb.Comment // Saved comment, if any
	Errors  []error          // Records which could not be saved
}

// Ingest reads a single message from r and stores what it finds.  Mail
// that is malformed or irrelevant is reported through Result.Status,
// not as an error.  Save failures are logged and collected in
// Result.Errors, and never stop the other record being attempted.
// Errors are returned for an unparseable From: header and for failed
// lookups.
func (ing *Ingester) Ingest(r io.Reader) (*Result, error) {
	e, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		log.Printf("Parsing message: %v", err)
		return &Result{Status: StatusSkipped}, nil
	}

	return ing.IngestEntity(e)
}

func (ing *Ingester) IngestEntity(e *message.Entity) (*Result, error) {
	res := &Result{Status: StatusSkipped}
	h := e.Header

	// some basic sanity checks
	for _, k := range []string{"From", "Subject", "Message-Id"} {
		if !h.Has(k) {
			return res, nil
		}
	}

	if strings.ToLower(strings.TrimSpace(h.Get(hintHeader))) == "ignore" {
		return res, nil
	}

	res.Msgid = strings.TrimSpace(h.Get("Message-Id"))

	project, err := ing.FindProject(h)
	if err != nil {
		return res, err
	}
	if project == nil {
		log.Printf("%s: no project found", res.Msgid)
		res.Status = StatusNoProject
		return res, nil
	}

	author, err := FindAuthor(h)
	if err != nil {
		return res, err
	}

	content, err := ing.FindContent(project, e)
	if err != nil {
		return res, err
	}
	if content.Patch == nil && content.Comment == nil {
		res.Status = StatusNoContent
		return res, nil
	}
	res.Status = StatusStored

	// The author is only recorded once there is something to attribute.
	saveAuthor := func() error {
		if author.ID != 0 {
			return nil
		}
		return ing.Store.UpsertPerson(author)
	}

	var patchErr error
	if patch := content.Patch; patch != nil {
		err := saveAuthor()
		if err == nil {
			patch.SubmitterID = author.ID
			patch.Msgid = res.Msgid
			patch.ProjectID = project.ID
			err = ing.Store.AddPatch(patch)
		}
		if err != nil {
			log.Printf("Saving patch %s: %v", res.Msgid, err)
			res.Errors = append(res.Errors, err)
			patchErr = err
		} else {
			res.Patch = patch
		}
	}

	if comment := content.Comment; comment != nil {
		err := saveAuthor()
		if err == nil {
			// A comment travelling with a new patch belongs to it; if
			// that patch failed to save, its ID is still zero and the
			// store refuses the comment.
			if content.Patch != nil {
				comment.PatchID = content.Patch.ID
			}
			comment.SubmitterID = author.ID
			comment.Msgid = res.Msgid
			err = ing.Store.AddComment(comment)
			if err != nil && patchErr != nil {
				err = fmt.Errorf("%w (patch not saved: %w)", err, patchErr)
			}
		}
		if err != nil {
			log.Printf("Saving comment %s: %v", res.Msgid, err)
			res.Errors = append(res.Errors, err)
		} else {
			res.Comment = comment
		}
	}

	return res, nil
}
