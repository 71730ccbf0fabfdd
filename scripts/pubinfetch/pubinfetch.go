package main

import (
	"log"

	"github.com/spf13/pflag"

	"github.com/gwd/patchwork"
	"github.com/gwd/patchwork/ingest"
	"github.com/gwd/patchwork/patchdb"
	pisrc "github.com/gwd/patchwork/pubinboxsrc"
)

var pipath = pflag.String("pipath", "", "Public Inbox path")

func main() {
	patchwork.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if *pipath == "" {
		log.Fatalf("Please specify a public inbox path with --pipath")
	}

	cfg, err := patchwork.LoadConfig(pflag.CommandLine)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	pdb, err := patchdb.OpenPatchDB(cfg.Database)
	if err != nil {
		log.Fatalf("Opening database %s: %v", cfg.Database, err)
	}
	defer pdb.Close()

	src, err := pisrc.Connect(pisrc.PublicInboxInfo{Path: *pipath})
	if err != nil {
		log.Fatalf("Opening PublicInbox: %v", err)
	}

	ing := ingest.NewIngester(pdb)
	ing.ListIDHeaders = cfg.ListIDHeaders

	log.Printf("Fetching mail")
	tally, err := src.Fetch(ing)
	if err != nil {
		log.Fatalf("Fetching messages: %v", err)
	}

	log.Printf("Imported archive: %v", tally)
}
