package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gwd/patchwork/patchdb"
)

const charsetPath = "testdata"

func TestCharset(t *testing.T) {
	want := map[string]string{
		"latin1-part.eml":      "Café is open.",
		"quoted-printable.eml": "Café is open.",
		"message-charset.eml":  "Grüße",
		"unknown-charset.eml":  "Hello there.",
		"bad-utf8.eml":         "bad \uFFFD byte",
	}

	ents, err := os.ReadDir(charsetPath)
	if err != nil {
		t.Fatalf("Opening charset test dir %s: %v", charsetPath, err)
	}

	for _, ent := range ents {
		fname := filepath.Join(charsetPath, ent.Name())
		f, err := os.Open(fname)
		if err != nil {
			t.Errorf("Opening %s: %v", fname, err)
			continue
		}

		store := newMemStore()
		store.patches = append(store.patches, &patchdb.Patch{ID: 1, Msgid: "<patch@example.com>"})
		store.nextID = 1

		res, err := NewIngester(store).Ingest(f)
		f.Close()
		if err != nil {
			t.Errorf("ERROR: ingesting %s: %v", ent.Name(), err)
			continue
		}
		if res.Comment == nil {
			t.Errorf("ERROR: %s: no comment stored (status %v)", ent.Name(), res.Status)
			continue
		}
		if w, ok := want[ent.Name()]; ok && res.Comment.Content != w {
			t.Errorf("ERROR: %s: got %q, wanted %q", ent.Name(), res.Comment.Content, w)
		}
	}
}
