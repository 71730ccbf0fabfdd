// Package pubinboxsrc feeds the mails of a public-inbox v2 archive to an
// ingester.
package pubinboxsrc

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gwd/patchwork/ingest"
)

type PublicInboxInfo struct {
	Path string // Path to "top-level" public-inbox for this list / address
}

type PublicInboxSrc struct {
	gitpath string // Path to directory of git repos.
}

// Connect only checks that the path exists and has the expected
// structure.
func Connect(info PublicInboxInfo) (*PublicInboxSrc, error) {
	src := &PublicInboxSrc{gitpath: path.Clean(path.Join(info.Path, "git"))}

	_, err := os.ReadDir(src.gitpath)
	if err != nil {
		return nil, fmt.Errorf("Reading public-inbox path: %w", err)
	}

	return src, nil
}

// history returns the commits reachable from HEAD, oldest first.
func history(repo *git.Repository) ([]plumbing.Hash, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Getting head revision: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("Getting log iterator: %w", err)
	}

	var hashes []plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		hashes = append(hashes, c.Hash)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}

	return hashes, nil
}

// Fetch walks every epoch repository in name order and hands the mail
// stored in each commit to ing.  Each commit holds a single mail in a
// blob called "m"; commits without one record deletions and are
// skipped.
//
// Nothing is cloned or fetched, and the whole archive is walked each
// time; mails already stored are refused by the store.  The xen-devel
// archive has duplicate mails, so finding a known msgid doesn't mean
// the rest of the archive has been seen.
func (src *PublicInboxSrc) Fetch(ing *ingest.Ingester) (*ingest.Tally, error) {
	entries, err := os.ReadDir(src.gitpath)
	if err != nil {
		return nil, fmt.Errorf("Reading gitdir %s: %w", src.gitpath, err)
	}

	lastMsg := time.Now()
	tally := &ingest.Tally{}
	log.Printf("Fetching messages...")

	// Entries are already sorted by name
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		rpath := path.Join(src.gitpath, e.Name())

		repo, err := git.PlainOpen(rpath)
		if err != nil {
			return tally, fmt.Errorf("Opening git repo at %s: %w", rpath, err)
		}

		hashes, err := history(repo)
		if err != nil {
			return tally, fmt.Errorf("Reading history of %s: %w", rpath, err)
		}

		log.Printf("Processing directory %s, %d commits", rpath, len(hashes))

		for _, h := range hashes {
			c, err := repo.CommitObject(h)
			if err != nil {
				return tally, fmt.Errorf("Reading commit %v: %w", h, err)
			}

			if time.Since(lastMsg) > time.Second*3 {
				lastMsg = time.Now()
				log.Printf("...%v.  Current date %v", tally, c.Author.When)
			}

			f, err := c.File("m")
			if errors.Is(err, object.ErrFileNotFound) {
				tally.Skipped++
				continue
			}
			if err != nil {
				return tally, fmt.Errorf("Reading mail from commit %v: %w", h, err)
			}

			rawmail, err := f.Contents()
			if err != nil {
				return tally, fmt.Errorf("Reading mail from commit %v: %w", h, err)
			}

			res, err := ing.Ingest(strings.NewReader(rawmail))
			if err != nil {
				log.Printf("Commit %v: %v", h, err)
			}
			tally.Add(res, err)
		}
	}

	log.Printf("Done: %v", tally)

	return tally, nil
}
