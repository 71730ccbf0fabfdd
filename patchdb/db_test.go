package patchdb

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *PatchDB {
	t.Helper()

	pdb, err := OpenPatchDB(filepath.Join(t.TempDir(), "patchdb.sqlite"))
	if err != nil {
		t.Fatalf("Opening test database: %v", err)
	}
	t.Cleanup(func() { pdb.Close() })

	return pdb
}

func addTestProject(t *testing.T, pdb *PatchDB) *Project {
	t.Helper()

	project := &Project{LinkName: "xen", Name: "Xen", ListID: "xen-devel.lists.xenproject.org"}
	if err := pdb.AddProject(project); err != nil {
		t.Fatalf("Adding project: %v", err)
	}
	return project
}

func TestReopen(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "patchdb.sqlite")

	pdb, err := OpenPatchDB(fname)
	if err != nil {
		t.Fatalf("Opening database: %v", err)
	}
	addTestProject(t, pdb)
	pdb.Close()

	pdb, err = OpenPatchDB(fname)
	if err != nil {
		t.Fatalf("Re-opening database: %v", err)
	}
	defer pdb.Close()

	if _, err := pdb.ProjectByLinkName("xen"); err != nil {
		t.Errorf("ERROR: project lost across re-open: %v", err)
	}
}

func TestProjectLookup(t *testing.T) {
	pdb := openTestDB(t)
	want := addTestProject(t, pdb)

	got, err := pdb.ProjectByListID("xen-devel.lists.xenproject.org")
	if err != nil {
		t.Fatalf("ERROR: looking up project: %v", err)
	}
	if *got != *want {
		t.Errorf("ERROR: got %v, wanted %v", *got, *want)
	}

	_, err = pdb.ProjectByListID("linux-kernel.vger.kernel.org")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ERROR: unknown list id: wanted ErrNotFound, got %v", err)
	}

	dup := &Project{LinkName: "xen2", Name: "Xen", ListID: want.ListID}
	if err := pdb.AddProject(dup); err == nil {
		t.Errorf("ERROR: duplicate list id accepted")
	}

	projects, err := pdb.Projects()
	if err != nil {
		t.Fatalf("ERROR: listing projects: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("ERROR: wanted 1 project, got %d", len(projects))
	}
}

func TestUpsertPerson(t *testing.T) {
	pdb := openTestDB(t)

	first := &Person{Email: "jane@example.com", Name: "Jane Doe"}
	if err := pdb.UpsertPerson(first); err != nil {
		t.Fatalf("ERROR: upserting person: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("ERROR: person ID not filled in")
	}

	// Same address, different name: the stored record wins.
	second := &Person{Email: "jane@example.com", Name: "J. Doe"}
	if err := pdb.UpsertPerson(second); err != nil {
		t.Fatalf("ERROR: upserting person again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ERROR: wanted ID %d, got %d", first.ID, second.ID)
	}
	if second.Name != "Jane Doe" {
		t.Errorf("ERROR: wanted stored name \"Jane Doe\", got %q", second.Name)
	}

	got, err := pdb.PersonByID(first.ID)
	if err != nil {
		t.Fatalf("ERROR: looking up person: %v", err)
	}
	if *got != *first {
		t.Errorf("ERROR: got %v, wanted %v", *got, *first)
	}
}

func TestPatchesAndComments(t *testing.T) {
	pdb := openTestDB(t)
	project := addTestProject(t, pdb)

	person := &Person{Email: "jane@example.com"}
	if err := pdb.UpsertPerson(person); err != nil {
		t.Fatalf("Upserting person: %v", err)
	}

	date := time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC)
	patch := &Patch{
		ProjectID:   project.ID,
		Msgid:       "<patch@example.com>",
		Name:        "Fix bug",
		Date:        date,
		SubmitterID: person.ID,
		Content:     "--- a/x\n+++ b/x\n",
		Headers:     "Subject: [PATCH] Fix bug\n",
	}
	if err := pdb.AddPatch(patch); err != nil {
		t.Fatalf("ERROR: adding patch: %v", err)
	}

	got, err := pdb.PatchByMsgid("<patch@example.com>")
	if err != nil {
		t.Fatalf("ERROR: looking up patch: %v", err)
	}
	if *got != *patch {
		t.Errorf("ERROR: got %v, wanted %v", *got, *patch)
	}

	dup := *patch
	if err := pdb.AddPatch(&dup); !errors.Is(err, ErrMsgidPresent) {
		t.Errorf("ERROR: duplicate patch: wanted ErrMsgidPresent, got %v", err)
	}

	// Comments are added out of date order, and come back sorted.
	for i, msgid := range []string{"<c2@example.com>", "<c1@example.com>"} {
		comment := &Comment{
			PatchID:     patch.ID,
			Msgid:       msgid,
			Date:        date.Add(time.Duration(2-i) * time.Hour),
			SubmitterID: person.ID,
			Content:     "Looks good.",
		}
		if err := pdb.AddComment(comment); err != nil {
			t.Fatalf("ERROR: adding comment %s: %v", msgid, err)
		}
	}

	comments, err := pdb.CommentsForPatch(patch.ID)
	if err != nil {
		t.Fatalf("ERROR: listing comments: %v", err)
	}
	if len(comments) != 2 || comments[0].Msgid != "<c1@example.com>" {
		t.Errorf("ERROR: unexpected comment order: %v", comments)
	}

	comment, err := pdb.CommentByMsgid("<c2@example.com>")
	if err != nil {
		t.Fatalf("ERROR: looking up comment: %v", err)
	}
	if comment.PatchID != patch.ID {
		t.Errorf("ERROR: comment attached to %d, wanted %d", comment.PatchID, patch.ID)
	}

	if _, err := pdb.CommentByMsgid("<nope@example.com>"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ERROR: unknown comment: wanted ErrNotFound, got %v", err)
	}

	if err := pdb.AddComment(&Comment{Msgid: "<orphan@example.com>", SubmitterID: person.ID}); err == nil {
		t.Errorf("ERROR: comment without a patch accepted")
	}

	patches, err := pdb.PatchesForProject(project.ID)
	if err != nil {
		t.Fatalf("ERROR: listing patches: %v", err)
	}
	if len(patches) != 1 || patches[0].ID != patch.ID {
		t.Errorf("ERROR: unexpected patch list: %v", patches)
	}
}

func TestIsMsgidPresent(t *testing.T) {
	pdb := openTestDB(t)
	project := addTestProject(t, pdb)

	person := &Person{Email: "jane@example.com"}
	if err := pdb.UpsertPerson(person); err != nil {
		t.Fatalf("Upserting person: %v", err)
	}

	patch := &Patch{ProjectID: project.ID, Msgid: "<p@x>", Name: "p", SubmitterID: person.ID}
	if err := pdb.AddPatch(patch); err != nil {
		t.Fatalf("Adding patch: %v", err)
	}
	comment := &Comment{PatchID: patch.ID, Msgid: "<c@x>", SubmitterID: person.ID}
	if err := pdb.AddComment(comment); err != nil {
		t.Fatalf("Adding comment: %v", err)
	}

	tests := []struct {
		msgid string
		want  bool
	}{
		{"<p@x>", true},
		{"<c@x>", true},
		{"<other@x>", false},
	}

	for _, test := range tests {
		got, err := pdb.IsMsgidPresent(test.msgid)
		if err != nil {
			t.Errorf("ERROR: checking %s: %v", test.msgid, err)
			continue
		}
		if got != test.want {
			t.Errorf("ERROR: %s: got %v, wanted %v", test.msgid, got, test.want)
		}
	}
}

func TestPatchListingOrder(t *testing.T) {
	pdb := openTestDB(t)
	project := addTestProject(t, pdb)

	person := &Person{Email: "jane@example.com"}
	if err := pdb.UpsertPerson(person); err != nil {
		t.Fatalf("Upserting person: %v", err)
	}

	// Added newest first; the last two share a date and keep insertion order.
	date := time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC)
	for _, p := range []struct {
		msgid string
		date  time.Time
	}{
		{"<late@example.com>", date.Add(time.Hour)},
		{"<tie1@example.com>", date},
		{"<tie2@example.com>", date},
	} {
		patch := &Patch{ProjectID: project.ID, Msgid: p.msgid, Name: p.msgid, Date: p.date, SubmitterID: person.ID}
		if err := pdb.AddPatch(patch); err != nil {
			t.Fatalf("ERROR: adding patch %s: %v", p.msgid, err)
		}
	}

	patches, err := pdb.PatchesForProject(project.ID)
	if err != nil {
		t.Fatalf("ERROR: listing patches: %v", err)
	}
	var got []string
	for _, p := range patches {
		got = append(got, p.Msgid)
	}
	want := "<tie1@example.com> <tie2@example.com> <late@example.com>"
	if strings.Join(got, " ") != want {
		t.Errorf("ERROR: got order %v, wanted %s", got, want)
	}
}
