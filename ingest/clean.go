package ingest

import (
	"errors"
	"log"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

var (
	reReply      = regexp.MustCompile(`(?i)^((re|fwd?)[:\s]\s*)+`)
	rePrefix     = regexp.MustCompile(`^\[[^\]]*\]\s*`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reSignature  = regexp.MustCompile(`(?ms)^(?:-{2,3} ?|_+)$.*`)
)

// CleanSubject strips reply markers and a leading [TAG] from a subject,
// and squashes whitespace.
func CleanSubject(subject string) string {
	subject = reReply.ReplaceAllString(subject, "")
	subject = rePrefix.ReplaceAllString(subject, "")
	subject = reWhitespace.ReplaceAllString(subject, " ")
	return strings.TrimSpace(subject)
}

// CleanContent drops everything from the first signature separator
// line ("--", "---", or underscores) onwards.
func CleanContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reSignature.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// headerText returns a header with RFC 2047 words decoded, or the raw
// value if they can't be.
func headerText(h message.Header, k string) string {
	v, err := h.Text(k)
	if err != nil {
		return h.Get(k)
	}
	return v
}

// MailDate returns the Date: header in UTC.  A missing or unparseable
// date is replaced by the current time.
func MailDate(h message.Header) time.Time {
	mh := mail.Header{Header: h}
	date, err := mh.Date()
	if err == nil && date.IsZero() {
		err = errors.New("no Date: header")
	}
	if err != nil {
		log.Printf("using now(): %v", err)
		return time.Now().UTC()
	}
	return date.UTC()
}

const maxHeaderLine = 78

var reFold = regexp.MustCompile(`\r?\n([ \t])`)

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// foldHeader breaks v at spaces so that lines stay within
// maxHeaderLine where possible; indent is the width already used on
// the first line.
func foldHeader(indent int, v string) string {
	var sb strings.Builder

	col := indent
	lineStart := indent
	for i, w := range strings.Split(v, " ") {
		if i > 0 {
			if col > lineStart && col+1+len(w) > maxHeaderLine {
				sb.WriteString("\n\t")
				col, lineStart = 1, 1
			} else {
				sb.WriteByte(' ')
				col++
			}
		}
		sb.WriteString(w)
		col += len(w)
	}

	return sb.String()
}

// MailHeaders renders all header fields, in order and including
// duplicates, as "Name: value" lines.  Values are unfolded, encoded as
// RFC 2047 words if they aren't plain ASCII, and folded again with tab
// continuations.
func MailHeaders(h message.Header) string {
	var sb strings.Builder

	fields := h.Fields()
	for fields.Next() {
		k := fields.Key()
		v := reFold.ReplaceAllString(fields.Value(), "$1")
		if !isASCII(v) {
			v = mime.QEncoding.Encode("utf-8", strings.ToValidUTF8(v, "\uFFFD"))
		}

		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(foldHeader(len(k)+2, v))
		sb.WriteString("\n")
	}

	return sb.String()
}
