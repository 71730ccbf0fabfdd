// Command pwproject registers the projects whose mailing lists are
// ingested, and lists those already known.
//
//	pwproject add --linkname xen --name "Xen Project" \
//	    --listid xen-devel.lists.xenproject.org --listemail xen-devel@lists.xenproject.org
//	pwproject list
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/gwd/patchwork"
	"github.com/gwd/patchwork/patchdb"
)

var (
	linkname  = pflag.String("linkname", "", "Short name of the project")
	name      = pflag.String("name", "", "Display name of the project")
	listid    = pflag.String("listid", "", "List-ID of the project's mailing list")
	listemail = pflag.String("listemail", "", "Posting address of the mailing list")
)

func addProject(pdb *patchdb.PatchDB, project *patchdb.Project) error {
	if project.LinkName == "" || project.ListID == "" {
		return fmt.Errorf("Both a link name and a list id are required")
	}
	if project.Name == "" {
		project.Name = project.LinkName
	}
	return pdb.AddProject(project)
}

func listProjects(w io.Writer, pdb *patchdb.PatchDB) error {
	projects, err := pdb.Projects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.LinkName, p.ListID, p.ListEmail, p.Name)
	}
	return nil
}

func main() {
	patchwork.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if pflag.NArg() != 1 {
		log.Fatalf("Usage: pwproject [flags] add|list")
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

	switch cmd := pflag.Arg(0); cmd {
	case "add":
		project := &patchdb.Project{
			LinkName:  *linkname,
			Name:      *name,
			ListID:    *listid,
			ListEmail: *listemail,
		}
		if err := addProject(pdb, project); err != nil {
			log.Fatalf("Adding project: %v", err)
		}
		log.Printf("Added project %s (id %d)", project.LinkName, project.ID)
	case "list":
		if err := listProjects(os.Stdout, pdb); err != nil {
			log.Fatalf("Listing projects: %v", err)
		}
	default:
		log.Fatalf("Unknown command %q", cmd)
	}
}
