// Command pwshow lists the patches of a project, or renders one patch
// and its comments as HTML.
package main

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/gwd/patchwork"
	"github.com/gwd/patchwork/patchdb"
	"github.com/gwd/patchwork/syntax"
)

var (
	linkname = pflag.String("project", "", "List the patches of this project")
	msgid    = pflag.String("msgid", "", "Render the patch with this message id")
)

const pageText = `<!DOCTYPE html>
<html>
<head><title>{{.Patch.Name}}</title></head>
<body>
<h1>{{.Patch.Name}}</h1>
<p class="meta">Submitted by {{person .Submitter}} on {{date .Patch.Date}}</p>
{{range .Comments}}<div class="comment">
<p class="meta">{{person .Submitter}} on {{date .Date}}</p>
<pre class="content">{{commentsyntax .Content}}</pre>
</div>
{{end}}<pre class="content">{{patchsyntax .Patch.Content}}</pre>
</body>
</html>
`

type commentView struct {
	*patchdb.Comment
	Submitter *patchdb.Person
}

type pageView struct {
	Patch     *patchdb.Patch
	Submitter *patchdb.Person
	Comments  []commentView
}

var page = template.Must(template.New("patch").
	Funcs(syntax.Funcs()).
	Funcs(template.FuncMap{
		"person": func(p *patchdb.Person) string {
			if p.Name == "" {
				return p.Email
			}
			return fmt.Sprintf("%s <%s>", p.Name, p.Email)
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02 15:04 MST")
		},
	}).
	Parse(pageText))

// people caches submitter lookups
type people struct {
	pdb   *patchdb.PatchDB
	known map[int64]*patchdb.Person
}

func (pp *people) get(id int64) (*patchdb.Person, error) {
	if p, ok := pp.known[id]; ok {
		return p, nil
	}
	p, err := pp.pdb.PersonByID(id)
	if err != nil {
		return nil, fmt.Errorf("Looking up submitter %d: %w", id, err)
	}
	pp.known[id] = p
	return p, nil
}

func renderPatch(w io.Writer, pdb *patchdb.PatchDB, patch *patchdb.Patch) error {
	pp := &people{pdb: pdb, known: map[int64]*patchdb.Person{}}

	view := pageView{Patch: patch}

	var err error
	if view.Submitter, err = pp.get(patch.SubmitterID); err != nil {
		return err
	}

	comments, err := pdb.CommentsForPatch(patch.ID)
	if err != nil {
		return fmt.Errorf("Getting comments: %w", err)
	}
	for _, c := range comments {
		submitter, err := pp.get(c.SubmitterID)
		if err != nil {
			return err
		}
		view.Comments = append(view.Comments, commentView{Comment: c, Submitter: submitter})
	}

	return page.Execute(w, view)
}

func listPatches(w io.Writer, pdb *patchdb.PatchDB, linkname string) error {
	project, err := pdb.ProjectByLinkName(linkname)
	if err != nil {
		return fmt.Errorf("Looking up project %s: %w", linkname, err)
	}

	patches, err := pdb.PatchesForProject(project.ID)
	if err != nil {
		return fmt.Errorf("Getting patches: %w", err)
	}

	for _, p := range patches {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Date.Format("2006-01-02"), p.Msgid, p.Name)
	}

	return nil
}

func main() {
	patchwork.AddFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := patchwork.LoadConfig(pflag.CommandLine)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	pdb, err := patchdb.OpenPatchDB(cfg.Database)
	if err != nil {
		log.Fatalf("Opening database %s: %v", cfg.Database, err)
	}
	defer pdb.Close()

	switch {
	case *msgid != "":
		patch, err := pdb.PatchByMsgid(*msgid)
		if err != nil {
			log.Fatalf("Looking up patch %s: %v", *msgid, err)
		}
		if err := renderPatch(os.Stdout, pdb, patch); err != nil {
			log.Fatalf("Rendering patch: %v", err)
		}
	case *linkname != "":
		if err := listPatches(os.Stdout, pdb, *linkname); err != nil {
			log.Fatalf("Listing patches: %v", err)
		}
	default:
		log.Fatalf("Please specify --project or --msgid")
	}
}
