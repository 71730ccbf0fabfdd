// Command parsemail reads a single mail on stdin and records the patch
// and/or comment it carries.  It is meant to be run from a mail
// delivery agent, so every outcome for the mail itself exits 0.
package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/gwd/patchwork"
	"github.com/gwd/patchwork/ingest"
	"github.com/gwd/patchwork/patchdb"
)

func main() {
	log.SetOutput(os.Stdout)

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

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("Reading mail: %v", err)
	}

	ing := ingest.NewIngester(pdb)
	ing.ListIDHeaders = cfg.ListIDHeaders

	res, err := ing.Ingest(bytes.NewReader(raw))
	switch {
	case errors.Is(err, ingest.ErrBadFrom):
		log.Printf("Ignoring mail: %v", err)
		return
	case err != nil:
		log.Fatalf("Ingesting mail: %v", err)
	}

	log.Printf("%s: %v", res.Msgid, res.Status)
}
