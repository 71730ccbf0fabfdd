package patchdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"gitlab.com/martyros/sqlutil/txutil"
)

var (
	ErrNotFound     = errors.New("Record not found")
	ErrMsgidPresent = errors.New("Message-Id already present")
)

type Project struct {
	ID        int64
	LinkName  string
	Name      string
	ListID    string
	ListEmail string
}

type Person struct {
	ID    int64
	Email string
	Name  string // Empty if the From: header carried no name
}

type Patch struct {
	ID          int64
	ProjectID   int64
	Msgid       string
	Name        string
	Date        time.Time
	SubmitterID int64
	Content     string
	Headers     string
}

type Comment struct {
	ID          int64
	PatchID     int64
	Msgid       string
	Date        time.Time
	SubmitterID int64
	Content     string
	Headers     string
}

type PatchDB struct {
	db *sqlx.DB
}

func (pdb *PatchDB) Close() error {
	return pdb.db.Close()
}

func AttachPatchDB(db *sqlx.DB) (*PatchDB, error) {
	pdb := &PatchDB{db: db}

	log.Println("Creating tables if they don't exist")
	err := txutil.TxLoopDb(db, func(eq sqlx.Ext) error {
		_, err := eq.Exec(`
        create table if not exists pw_params(
            key       text primary key,
            value     text not null)`)
		if err != nil {
			return fmt.Errorf("Creating table params: %w", err)
		}
		_, err = eq.Exec(`
        insert into pw_params(key, value)
            values ('dbversion', '1')
            on conflict do nothing`)
		if err != nil {
			return fmt.Errorf("Inserting version param: %w", err)
		}

		_, err = eq.Exec(`
        create table if not exists pw_projects(
            projectid integer primary key,
            linkname  text not null unique,
            name      text not null,
            listid    text not null unique,
            listemail text not null default '')`)
		if err != nil {
			return fmt.Errorf("Creating table projects: %w", err)
		}

		_, err = eq.Exec(`
        create table if not exists pw_people(
            personid integer primary key,
            email    text not null unique,
            name     text not null default '')`)
		if err != nil {
			return fmt.Errorf("Creating table people: %w", err)
		}

		_, err = eq.Exec(`
        create table if not exists pw_patches(
            patchid     integer primary key,
            projectid   integer not null,
            msgid       text not null unique,
            name        text not null,
            date        integer not null, /* Unix seconds */
            submitterid integer not null,
            content     text not null,
            headers     text not null,
            foreign key(projectid) references pw_projects,
            foreign key(submitterid) references pw_people)`)
		if err != nil {
			return fmt.Errorf("Creating table patches: %w", err)
		}

		_, err = eq.Exec(`
        create table if not exists pw_comments(
            commentid   integer primary key,
            patchid     integer not null,
            msgid       text not null unique,
            date        integer not null, /* Unix seconds */
            submitterid integer not null,
            content     text not null,
            headers     text not null,
            foreign key(patchid) references pw_patches,
            foreign key(submitterid) references pw_people)`)
		if err != nil {
			return fmt.Errorf("Creating table comments: %w", err)
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return pdb, nil
}

func OpenPatchDB(filename string) (*PatchDB, error) {
	log.Printf("Opening database %s", filename)
	db, err := sqlx.Open("sqlite3", "file:"+filename+"?_fk=true&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("Opening database: %w", err)
	}

	return AttachPatchDB(db)
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// getOne runs a single-row query, turning an empty result into ErrNotFound.
func getOne(eq sqlx.Ext, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.Get(eq, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (pdb *PatchDB) AddProject(project *Project) error {
	return txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		res, err := eq.Exec(`
        insert into pw_projects(linkname, name, listid, listemail)
            values (?, ?, ?, ?)`,
			project.LinkName, project.Name, project.ListID, project.ListEmail)
		if err != nil {
			return fmt.Errorf("Inserting project %s: %w", project.LinkName, err)
		}
		project.ID, err = res.LastInsertId()
		return err
	})
}

const projectColumns = `projectid, linkname, name, listid, listemail`

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	if err := row.Scan(&p.ID, &p.LinkName, &p.Name, &p.ListID, &p.ListEmail); err != nil {
		return nil, err
	}
	return p, nil
}

func (pdb *PatchDB) projectBy(column, value string) (*Project, error) {
	row := pdb.db.QueryRowx(`select `+projectColumns+` from pw_projects where `+column+` = ?`, value)
	p, err := scanProject(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("Looking up project by %s %q: %w", column, value, err)
	}
	return p, nil
}

func (pdb *PatchDB) ProjectByListID(listid string) (*Project, error) {
	return pdb.projectBy("listid", listid)
}

func (pdb *PatchDB) ProjectByLinkName(linkname string) (*Project, error) {
	return pdb.projectBy("linkname", linkname)
}

func (pdb *PatchDB) Projects() ([]*Project, error) {
	rows, err := pdb.db.Queryx(`select ` + projectColumns + ` from pw_projects order by linkname`)
	if err != nil {
		return nil, fmt.Errorf("Listing projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("Scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpsertPerson makes sure a person with person.Email exists, then fills
// in person.ID and person.Name from the stored row.  An existing
// person's name is left alone.
func (pdb *PatchDB) UpsertPerson(person *Person) error {
	return txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		// Insert-or-ignore, then always query, so that duplicates and
		// fresh inserts take the same path.
		_, err := eq.Exec(`
        insert into pw_people(email, name)
            values (?, ?)
            on conflict do nothing`,
			person.Email, person.Name)
		if err != nil {
			return fmt.Errorf("Inserting person: %w", err)
		}

		row := eq.QueryRowx(`select personid, name from pw_people where email = ?`, person.Email)
		if err := row.Scan(&person.ID, &person.Name); err != nil {
			return fmt.Errorf("Getting id for person %s: %w", person.Email, err)
		}
		return nil
	})
}

func (pdb *PatchDB) PersonByID(id int64) (*Person, error) {
	p := &Person{}
	row := pdb.db.QueryRowx(`select personid, email, name from pw_people where personid = ?`, id)
	err := row.Scan(&p.ID, &p.Email, &p.Name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("Looking up person %d: %w", id, err)
	}
	return p, nil
}

func (pdb *PatchDB) AddPatch(patch *Patch) error {
	return txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		res, err := eq.Exec(`
        insert into pw_patches(projectid, msgid, name, date, submitterid, content, headers)
            values (?, ?, ?, ?, ?, ?, ?)`,
			patch.ProjectID, patch.Msgid, patch.Name, patch.Date.Unix(),
			patch.SubmitterID, patch.Content, patch.Headers)
		if isConstraintErr(err) {
			var n int
			if getOne(eq, &n, `select count(*) from pw_patches where msgid = ?`, patch.Msgid) == nil && n > 0 {
				return fmt.Errorf("Inserting patch %s: %w", patch.Msgid, ErrMsgidPresent)
			}
		}
		if err != nil {
			return fmt.Errorf("Inserting patch %s: %w", patch.Msgid, err)
		}
		patch.ID, err = res.LastInsertId()
		return err
	})
}

func (pdb *PatchDB) AddComment(comment *Comment) error {
	if comment.PatchID == 0 {
		return fmt.Errorf("Inserting comment %s: no patch to attach to", comment.Msgid)
	}

	return txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		res, err := eq.Exec(`
        insert into pw_comments(patchid, msgid, date, submitterid, content, headers)
            values (?, ?, ?, ?, ?, ?)`,
			comment.PatchID, comment.Msgid, comment.Date.Unix(),
			comment.SubmitterID, comment.Content, comment.Headers)
		if isConstraintErr(err) {
			var n int
			if getOne(eq, &n, `select count(*) from pw_comments where msgid = ?`, comment.Msgid) == nil && n > 0 {
				return fmt.Errorf("Inserting comment %s: %w", comment.Msgid, ErrMsgidPresent)
			}
		}
		if err != nil {
			return fmt.Errorf("Inserting comment %s: %w", comment.Msgid, err)
		}
		comment.ID, err = res.LastInsertId()
		return err
	})
}

// IsMsgidPresent reports whether a patch or a comment already carries
// msgid.  Mail sources use it to avoid downloading mail twice; any race
// only costs a wasted download, since inserts enforce uniqueness anyway.
func (pdb *PatchDB) IsMsgidPresent(msgid string) (bool, error) {
	var n int
	err := pdb.db.Get(&n, `
        select (select count(*) from pw_patches where msgid = ?1)
             + (select count(*) from pw_comments where msgid = ?1)`, msgid)
	if err != nil {
		return false, fmt.Errorf("Querying for messageid %v: %w", msgid, err)
	}
	return n > 0, nil
}
