// Package syntax marks up stored patches and comments for HTML display.
//
// Each renderer is an ordered list of rules applied one after another
// to the whole text.  Later rules see the output of earlier ones, so
// the order matters: a broad pattern must come after the narrower ones
// whose lines it would otherwise swallow.  Rendering already-rendered
// text escapes the markup again; the functions are not idempotent.
package syntax

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

type rule struct {
	re    *regexp.Regexp
	class string
}

func compile(pattern, class string) rule {
	return rule{re: regexp.MustCompile(`(?mi)` + pattern), class: class}
}

func span(class, text string) string {
	return fmt.Sprintf(`<span class="%s">%s</span>`, class, text)
}

func (r rule) apply(text string) string {
	return r.re.ReplaceAllStringFunc(text, func(m string) string {
		return span(r.class, m)
	})
}

var patchRules = []rule{
	compile(`^(Index:?|diff|---|\+\+\+|\*\*\*) .*$`, "p_header"),
	compile(`^\+.*$`, "p_add"),
	compile(`^-.*$`, "p_del"),
	compile(`^!.*$`, "p_mod"),
}

var reHunk = regexp.MustCompile(`(?mi)^(@@ -\d+(?:,\d+)? \+\d+(?:,\d+)? @@)(.*)$`)

var commentRules = []rule{
	compile(`^[ \t]*Signed-off-by: .*$`, "signed-off-by"),
	compile(`^[ \t]*Acked-by: .*$`, "acked-by"),
	compile(`^[ \t]*Nacked-by: .*$`, "nacked-by"),
	compile(`^[ \t]*Tested-by: .*$`, "tested-by"),
	compile(`^[ \t]*Reviewed-by: .*$`, "reviewed-by"),
	compile(`^[ \t]*From: .*$`, "from"),
	compile(`^[ \t]*&gt;.*$`, "quote"),
}

// PatchSyntax escapes a diff and wraps header, added, removed and
// modified lines in spans.  A hunk header becomes two spans: the
// "@@ ... @@" marker and the trailing context.
func PatchSyntax(diff string) template.HTML {
	out := strings.ReplaceAll(template.HTMLEscapeString(diff), "\r\n", "\n")

	for _, r := range patchRules {
		out = r.apply(out)
	}

	out = reHunk.ReplaceAllString(out,
		span("p_chunk", "${1}")+" "+span("p_context", "${2}"))

	return template.HTML(out)
}

// CommentSyntax escapes comment text and wraps review tags and quoted
// lines in spans.
func CommentSyntax(content string) template.HTML {
	out := template.HTMLEscapeString(content)

	for _, r := range commentRules {
		out = r.apply(out)
	}

	return template.HTML(out)
}

// Funcs returns the renderers for use in an html/template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"patchsyntax":   PatchSyntax,
		"commentsyntax": CommentSyntax,
	}
}
