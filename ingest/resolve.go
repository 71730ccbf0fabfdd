package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-message"

	"github.com/gwd/patchwork/patchdb"
)

var ErrBadFrom = errors.New("Could not parse From: header")

var reListID = regexp.MustCompile(`(?s).*<([^>]+)>`)

// FindProject returns the project named by the first list-id header
// which carries a <token> matching a known project, or nil if there is
// none.
func (ing *Ingester) FindProject(h message.Header) (*patchdb.Project, error) {
	for _, k := range ing.ListIDHeaders {
		if !h.Has(k) {
			continue
		}

		m := reListID.FindStringSubmatch(h.Get(k))
		if m == nil {
			continue
		}

		project, err := ing.Store.ProjectByListID(m[1])
		switch {
		case err == nil:
			return project, nil
		case errors.Is(err, patchdb.ErrNotFound):
			continue
		default:
			return nil, fmt.Errorf("Looking up list id %s: %w", m[1], err)
		}
	}

	return nil, nil
}

// From: header formats, most specific first.  Each returns (name, email).
var fromFormats = []struct {
	re    *regexp.Regexp
	parts func(m []string) (string, string)
}{
	// "Firstname Lastname" <example@example.com>
	{regexp.MustCompile(`^"?(.*?)"?\s*<([^>]+)>`),
		func(m []string) (string, string) { return m[1], m[2] }},
	// example@example.com (Firstname Lastname)
	{regexp.MustCompile(`^"?(.*?)"?\s*\(([^\)]+)\)`),
		func(m []string) (string, string) { return m[2], m[1] }},
	// everything else
	{regexp.MustCompile(`^(.*)`),
		func(m []string) (string, string) { return "", m[1] }},
}

// ParseFrom splits a From: header value into a name and an address.
// The formats are tried in order and the first that matches is used,
// even if a later one would fit better.
func ParseFrom(from string) (name, email string, err error) {
	from = strings.TrimSpace(from)

	for _, f := range fromFormats {
		if m := f.re.FindStringSubmatch(from); m != nil {
			name, email = f.parts(m)
			break
		}
	}

	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if email == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadFrom, from)
	}

	return name, email, nil
}

// FindAuthor returns an unsaved person for the message's From: header.
// Saving it (which finds an existing record with the same address) is
// left to the caller, so that mail with nothing to store creates no
// people.
func FindAuthor(h message.Header) (*patchdb.Person, error) {
	from, err := h.Text("From")
	if err != nil {
		from = h.Get("From")
	}

	name, email, err := ParseFrom(from)
	if err != nil {
		return nil, err
	}

	return &patchdb.Person{Name: name, Email: email}, nil
}

// threadRefs lists the message ids a reply may be answering, most
// likely first: In-Reply-To, then References from newest to oldest.
func threadRefs(h message.Header) []string {
	var refs []string
	seen := map[string]bool{}

	add := func(ref string) {
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}

	if h.Has("In-Reply-To") {
		add(strings.TrimSpace(h.Get("In-Reply-To")))
	}

	rs := strings.Fields(h.Get("References"))
	for i := len(rs) - 1; i >= 0; i-- {
		add(rs[i])
	}

	return refs
}

// FindPatchForComment returns the patch a reply belongs to: the first
// referenced message which is either a patch, or a comment on one.
// Later references are not consulted once one matches.
func (ing *Ingester) FindPatchForComment(h message.Header) (*patchdb.Patch, error) {
	for _, ref := range threadRefs(h) {
		// first, check for a direct reply
		patch, err := ing.Store.PatchByMsgid(ref)
		switch {
		case err == nil:
			return patch, nil
		case !errors.Is(err, patchdb.ErrNotFound):
			return nil, fmt.Errorf("Looking up patch %s: %w", ref, err)
		}

		// see if we have comments that refer to a patch
		comment, err := ing.Store.CommentByMsgid(ref)
		switch {
		case err == nil:
			return ing.Store.PatchByID(comment.PatchID)
		case !errors.Is(err, patchdb.ErrNotFound):
			return nil, fmt.Errorf("Looking up comment %s: %w", ref, err)
		}
	}

	return nil, nil
}
