package patchdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gitlab.com/martyros/sqlutil/txutil"
)

const patchColumns = `patchid, projectid, msgid, name, date, submitterid, content, headers`
const commentColumns = `commentid, patchid, msgid, date, submitterid, content, headers`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// "Standard" code to scan a patch row
func scanPatch(row rowScanner) (*Patch, error) {
	patch := &Patch{}
	var dateSeconds int64

	err := row.Scan(&patch.ID, &patch.ProjectID, &patch.Msgid, &patch.Name,
		&dateSeconds, &patch.SubmitterID, &patch.Content, &patch.Headers)
	if err != nil {
		return nil, err
	}

	patch.Date = time.Unix(dateSeconds, 0).UTC()

	return patch, nil
}

func scanComment(row rowScanner) (*Comment, error) {
	comment := &Comment{}
	var dateSeconds int64

	err := row.Scan(&comment.ID, &comment.PatchID, &comment.Msgid,
		&dateSeconds, &comment.SubmitterID, &comment.Content, &comment.Headers)
	if err != nil {
		return nil, err
	}

	comment.Date = time.Unix(dateSeconds, 0).UTC()

	return comment, nil
}

func (pdb *PatchDB) patchBy(column string, value interface{}) (*Patch, error) {
	row := pdb.db.QueryRowx(`select `+patchColumns+` from pw_patches where `+column+` = ?`, value)
	patch, err := scanPatch(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("Looking up patch by %s %v: %w", column, value, err)
	}
	return patch, nil
}

func (pdb *PatchDB) PatchByMsgid(msgid string) (*Patch, error) {
	return pdb.patchBy("msgid", msgid)
}

func (pdb *PatchDB) PatchByID(id int64) (*Patch, error) {
	return pdb.patchBy("patchid", id)
}

func (pdb *PatchDB) CommentByMsgid(msgid string) (*Comment, error) {
	row := pdb.db.QueryRowx(`select `+commentColumns+` from pw_comments where msgid = ?`, msgid)
	comment, err := scanComment(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("Looking up comment by msgid %s: %w", msgid, err)
	}
	return comment, nil
}

// PatchesForProject returns all patches of a project, oldest first.
func (pdb *PatchDB) PatchesForProject(projectID int64) ([]*Patch, error) {
	var patches []*Patch

	err := txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		rows, err := eq.Queryx(`select `+patchColumns+`
            from pw_patches where projectid = ?
            order by date, patchid`, projectID)
		if err != nil {
			return fmt.Errorf("Getting patch list for project %d: %w", projectID, err)
		}
		defer rows.Close()

		patches = []*Patch{}
		for rows.Next() {
			patch, err := scanPatch(rows)
			if err != nil {
				return fmt.Errorf("Scanning results: %w", err)
			}
			patches = append(patches, patch)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return patches, nil
}

// CommentsForPatch returns the comments attached to a patch, oldest first.
func (pdb *PatchDB) CommentsForPatch(patchID int64) ([]*Comment, error) {
	var comments []*Comment

	err := txutil.TxLoopDb(pdb.db, func(eq sqlx.Ext) error {
		rows, err := eq.Queryx(`select `+commentColumns+`
            from pw_comments where patchid = ?
            order by date, commentid`, patchID)
		if err != nil {
			return fmt.Errorf("Getting comment list for patch %d: %w", patchID, err)
		}
		defer rows.Close()

		comments = []*Comment{}
		for rows.Next() {
			comment, err := scanComment(rows)
			if err != nil {
				return fmt.Errorf("Scanning results: %w", err)
			}
			comments = append(comments, comment)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return comments, nil
}
