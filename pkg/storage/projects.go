package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotMember is returned when a mutation requires project membership the
// caller does not have.
var ErrNotMember = errors.New("storage: user does not belong to this project")

// Project is a collaborative workspace. Members holds user ids; FileTree is
// the editor state as raw JSON.
type Project struct {
	ID        string          `json:"_id"`
	Name      string          `json:"name"`
	Members   []string        `json:"users"`
	FileTree  json.RawMessage `json:"fileTree"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ValidProjectID reports whether id is a well-formed project identifier.
// Project ids are store-assigned UUIDs; anything else is malformed.
func ValidProjectID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// CreateProject inserts a project owned by (and initially containing only)
// the given user. Returns ErrDuplicate if the name is taken.
func (s *Store) CreateProject(ctx context.Context, name, ownerID string) (*Project, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	p := &Project{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   []string{ownerID},
		FileTree:  json.RawMessage(`{}`),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO projects (id, name, file_tree, created_at)
        VALUES (?, ?, ?, ?)
    `, p.ID, p.Name, string(p.FileTree), p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO project_members (project_id, user_id) VALUES (?, ?)
    `, p.ID, ownerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns the project with its member ids, or ErrNotFound.
func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, file_tree, created_at FROM projects WHERE id = ?
    `, projectID)

	var p Project
	var tree string
	if err := row.Scan(&p.ID, &p.Name, &tree, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.FileTree = json.RawMessage(tree)

	members, err := s.projectMembers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Members = members
	return &p, nil
}

// ListProjectsByUser returns every project the user is a member of.
func (s *Store) ListProjectsByUser(ctx context.Context, userID string) ([]*Project, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT p.id, p.name, p.file_tree, p.created_at
        FROM projects p
        JOIN project_members m ON m.project_id = p.id
        WHERE m.user_id = ?
        ORDER BY p.created_at
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var tree string
		if err := rows.Scan(&p.ID, &p.Name, &tree, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.FileTree = json.RawMessage(tree)
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range projects {
		members, err := s.projectMembers(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Members = members
	}
	return projects, nil
}

// AddUsersToProject unions the given user ids into the project's membership.
// The caller must already be a member; adding an existing member is a no-op.
func (s *Store) AddUsersToProject(ctx context.Context, projectID string, userIDs []string, callerID string) (*Project, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	isMember, err := s.IsProjectMember(ctx, projectID, callerID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)
        `, projectID, uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProject(ctx, projectID)
}

// UpdateFileTree replaces the project's file tree with the given JSON.
func (s *Store) UpdateFileTree(ctx context.Context, projectID string, fileTree json.RawMessage) (*Project, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if len(fileTree) == 0 {
		return nil, fmt.Errorf("file tree is required")
	}
	if !json.Valid(fileTree) {
		return nil, fmt.Errorf("file tree is not valid JSON")
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE projects SET file_tree = ? WHERE id = ?
    `, string(fileTree), projectID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(ctx, projectID)
}

// IsProjectMember reports whether the user belongs to the project.
func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}

	var one int
	err := s.db.QueryRowContext(ctx, `
        SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ?
    `, projectID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) projectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_id FROM project_members WHERE project_id = ? ORDER BY added_at
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}
