package ingest

import (
	"bytes"
	"io"
	"log"
	"strings"

	"github.com/emersion/go-message"
	"golang.org/x/net/html/charset"

	"github.com/gwd/patchwork/patchdb"
)

// Content holds the records found in a message, not yet stamped with
// project, submitter or message id.  If both are present the comment
// belongs to the patch.
type Content struct {
	Patch   *patchdb.Patch
	Comment *patchdb.Comment
}

func contentType(h message.Header) (string, map[string]string) {
	t, params, err := h.ContentType()
	if err != nil || t == "" {
		// RFC 2045: no usable Content-Type means text/plain
		return "text/plain", params
	}
	return t, params
}

// partText returns the decoded text of a text/* entity with LF line
// endings.  go-message has already converted the body if the part
// declared a charset it knows; otherwise the message's charset is
// tried, and finally UTF-8.  Bytes which still don't decode are
// replaced rather than rejected.  A body cut short is returned as far
// as it could be read, along with the error.
func partText(e *message.Entity, msgCharset string) (string, error) {
	_, params := contentType(e.Header)

	body, readErr := io.ReadAll(e.Body)

	if _, ok := params["charset"]; !ok && msgCharset != "" {
		r, err := charset.NewReaderLabel(msgCharset, bytes.NewReader(body))
		if err == nil {
			if decoded, err := io.ReadAll(r); err == nil {
				body = decoded
			}
		}
	}

	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	return strings.ToValidUTF8(text, "\uFFFD"), readErr
}

// FindContent walks the text parts of a message looking for a patch
// and comment text.  text/x-patch parts are taken whole as the patch;
// text/plain parts are split into patch and comment until a patch has
// been found, and are comment text after that.  A comment without a
// patch of its own must be a reply to a known patch, or it is dropped.
//
// A malformed message (a truncated multipart, say) stops the walk; the
// parts read up to that point are still used.
//
// project is currently unused.
func (ing *Ingester) FindContent(project *patchdb.Project, e *message.Entity) (*Content, error) {
	var patchbuf string
	var comments []string

	_, msgParams := contentType(e.Header)
	msgCharset := msgParams["charset"]

	err := e.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}

		t, _ := contentType(part.Header)
		maintype, subtype, _ := strings.Cut(t, "/")
		if maintype != "text" {
			return nil
		}

		payload, err := partText(part, msgCharset)
		if err != nil {
			log.Printf("Reading part %v: %v", path, err)
		}

		var c string
		switch subtype {
		case "x-patch":
			patchbuf = payload
			return nil
		case "plain":
			if patchbuf == "" {
				patchbuf, c = ing.Split(payload)
			} else {
				c = payload
			}
		default:
			return nil
		}

		if c = strings.TrimSpace(c); c != "" {
			comments = append(comments, c)
		}
		return nil
	})
	if err != nil {
		log.Printf("Walking message parts: %v", err)
	}

	content := &Content{}
	h := e.Header

	if patchbuf != "" {
		content.Patch = &patchdb.Patch{
			Name:    CleanSubject(headerText(h, "Subject")),
			Content: patchbuf,
			Date:    MailDate(h),
			Headers: MailHeaders(h),
		}
	}

	commentbuf := CleanContent(strings.Join(comments, "\n"))
	if commentbuf == "" {
		return content, nil
	}

	comment := &patchdb.Comment{
		Date:    MailDate(h),
		Content: commentbuf,
		Headers: MailHeaders(h),
	}

	if content.Patch == nil {
		cpatch, err := ing.FindPatchForComment(h)
		if err != nil {
			return nil, err
		}
		if cpatch == nil {
			log.Printf("No patch found for comment %s", strings.TrimSpace(h.Get("Message-Id")))
			return &Content{}, nil
		}
		comment.PatchID = cpatch.ID
	}

	content.Comment = comment

	return content, nil
}
