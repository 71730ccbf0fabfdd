// Package patchparse separates a unified diff from the surrounding free
// text of a plain-text mail body.
package patchparse

import (
	"regexp"
	"strconv"
	"strings"
)

// A Splitter takes the text of a mail body and returns the patch it
// contains and the remaining comment text.  Either may be empty.
type Splitter func(text string) (patch, comment string)

type state int

const (
	stateComment = state(iota) // Outside of any diff
	stateHeader                // Seen "diff", "Index:" or "===", waiting for "--- "
	stateOld                   // Seen "--- ", waiting for "+++ "
	stateFile                  // Between hunks of a file
	stateHunk                  // Inside a hunk, counting lines
)

var reHunk = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)

func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func isFileStart(line string) bool {
	return strings.HasPrefix(line, "diff ") ||
		strings.HasPrefix(line, "Index: ") ||
		strings.HasPrefix(line, "===")
}

// Split is the default Splitter.  Lines which look like the start of a
// diff are held back until a hunk header confirms them; if none turns
// up they are handed back to the comment.  Hunks consume exactly the
// number of lines their header announces, so trailing text such as a
// git signature ends up in the comment.
func Split(text string) (patch, comment string) {
	var patchbuf, commentbuf, buf strings.Builder
	var oldLines, newLines int

	st := stateComment
	sawHunk := false

	// Lines that turned out not to be part of a diff go back to the comment
	abandon := func(line string) {
		commentbuf.WriteString(buf.String())
		commentbuf.WriteString(line)
		buf.Reset()
		st = stateComment
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}

		switch st {
		case stateComment:
			switch {
			case isFileStart(line):
				buf.WriteString(line)
				st = stateHeader
			case strings.HasPrefix(line, "--- "):
				buf.WriteString(line)
				st = stateOld
			default:
				commentbuf.WriteString(line)
			}

		case stateHeader:
			buf.WriteString(line)
			if strings.HasPrefix(line, "--- ") {
				st = stateOld
			}

		case stateOld:
			if !strings.HasPrefix(line, "+++ ") {
				abandon(line)
				continue
			}
			buf.WriteString(line)
			st = stateFile

		case stateFile:
			if m := reHunk.FindStringSubmatch(line); m != nil {
				oldLines, newLines = hunkCount(m[1]), hunkCount(m[2])
				patchbuf.WriteString(buf.String())
				patchbuf.WriteString(line)
				buf.Reset()
				sawHunk = true
				st = stateHunk
				if oldLines <= 0 && newLines <= 0 {
					st = stateFile
				}
				continue
			}

			// Once a file has had a hunk, another file may follow.
			if sawHunk && buf.Len() == 0 {
				switch {
				case strings.HasPrefix(line, `\`):
					patchbuf.WriteString(line)
					continue
				case isFileStart(line):
					buf.WriteString(line)
					st = stateHeader
					continue
				case strings.HasPrefix(line, "--- "):
					buf.WriteString(line)
					st = stateOld
					continue
				}
			}
			abandon(line)

		case stateHunk:
			switch {
			case strings.HasPrefix(line, "-"):
				oldLines--
			case strings.HasPrefix(line, "+"):
				newLines--
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
			default:
				oldLines--
				newLines--
			}
			patchbuf.WriteString(line)
			if oldLines <= 0 && newLines <= 0 {
				st = stateFile
			}
		}
	}

	// Anything still held back never became a diff.
	commentbuf.WriteString(buf.String())

	return patchbuf.String(), strings.TrimSpace(commentbuf.String())
}
