// Command mailfetch imports new mail from the configured IMAP mailbox.
package main

import (
	"log"

	"github.com/spf13/pflag"

	"github.com/gwd/patchwork"
	"github.com/gwd/patchwork/imapsource"
	"github.com/gwd/patchwork/ingest"
	"github.com/gwd/patchwork/patchdb"
)

func main() {
	patchwork.AddFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := patchwork.LoadConfig(pflag.CommandLine)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	if cfg.IMAP.Hostname == "" {
		log.Fatal("No imap.server configured")
	}
	if cfg.IMAP.Username == "" {
		log.Fatal("No imap.username configured")
	}
	if cfg.IMAP.Password == "" {
		log.Fatal("No imap.password configured")
	}

	log.Println("Opening database")
	pdb, err := patchdb.OpenPatchDB(cfg.Database)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer pdb.Close()

	ing := ingest.NewIngester(pdb)
	ing.ListIDHeaders = cfg.ListIDHeaders

	src := imapsource.NewImapSource(cfg.IMAP)
	defer src.Close()

	log.Println("Opening imap connection")
	if err = src.Connect(); err != nil {
		log.Fatalf("Connecting to the IMAP server: %v", err)
	}

	tally, err := src.Fetch(ing, pdb)
	if err != nil {
		log.Fatalf("Fetching mail: %v", err)
	}

	log.Printf("Fetched mail: %v", tally)
}
