package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwd/patchwork/patchdb"
)

func TestRenderPatch(t *testing.T) {
	pdb, err := patchdb.OpenPatchDB(filepath.Join(t.TempDir(), "patchdb.sqlite"))
	if err != nil {
		t.Fatalf("Opening database: %v", err)
	}
	defer pdb.Close()

	project := &patchdb.Project{LinkName: "xen", Name: "Xen", ListID: "xen-devel.lists.xenproject.org"}
	if err := pdb.AddProject(project); err != nil {
		t.Fatalf("Adding project: %v", err)
	}

	jane := &patchdb.Person{Email: "jane@example.com", Name: "Jane Doe"}
	joe := &patchdb.Person{Email: "joe@example.com"}
	for _, p := range []*patchdb.Person{jane, joe} {
		if err := pdb.UpsertPerson(p); err != nil {
			t.Fatalf("Adding person: %v", err)
		}
	}

	when := time.Date(2023, 2, 1, 11, 0, 0, 0, time.UTC)
	patch := &patchdb.Patch{
		ProjectID:   project.ID,
		Msgid:       "<p1@example.com>",
		Name:        "Fix <bug>",
		Date:        when,
		SubmitterID: jane.ID,
		Content:     "--- a/f\n+++ b/f\n@@ -1 +1 @@ main()\n-old\n+new\n",
	}
	if err := pdb.AddPatch(patch); err != nil {
		t.Fatalf("Adding patch: %v", err)
	}

	comment := &patchdb.Comment{
		PatchID:     patch.ID,
		Msgid:       "<r1@example.com>",
		Date:        when.Add(time.Hour),
		SubmitterID: joe.ID,
		Content:     "> +new\nAcked-by: Joe <joe@example.com>",
	}
	if err := pdb.AddComment(comment); err != nil {
		t.Fatalf("Adding comment: %v", err)
	}

	var buf bytes.Buffer
	if err := renderPatch(&buf, pdb, patch); err != nil {
		t.Fatalf("ERROR: rendering: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`<title>Fix &lt;bug&gt;</title>`,
		`Submitted by Jane Doe &lt;jane@example.com&gt; on 2023-02-01 11:00 UTC`,
		`<p class="meta">joe@example.com on 2023-02-01 12:00 UTC</p>`,
		`<span class="quote">&gt; +new</span>`,
		`<span class="acked-by">Acked-by: Joe &lt;joe@example.com&gt;</span>`,
		`<span class="p_header">--- a/f</span>`,
		`<span class="p_chunk">@@ -1 +1 @@</span> <span class="p_context"> main()</span>`,
		`<span class="p_add">+new</span>`,
		`<span class="p_del">-old</span>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ERROR: output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := listPatches(&buf, pdb, "xen"); err != nil {
		t.Fatalf("ERROR: listing: %v", err)
	}
	if got := buf.String(); got != "2023-02-01\t<p1@example.com>\tFix <bug>\n" {
		t.Errorf("ERROR: unexpected listing %q", got)
	}
}
