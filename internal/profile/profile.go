package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vantir/abilitymod/internal/mod"
)

// ErrNotFound is returned when no profile with the requested name exists.
var ErrNotFound = errors.New("profile not found")

// Profile is one saved modification document with its storage metadata.
type Profile struct {
	Name        string
	AbilityID   int32
	Fingerprint string
	Document    *mod.Document
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Save upserts a profile under the given name. The document is serialized
// through the exchange codec and fingerprinted, so two saves of the same
// entry set share a fingerprint regardless of name.
func (s *Store) Save(ctx context.Context, name string, doc *mod.Document) error {
	if name == "" {
		return fmt.Errorf("save profile: empty name")
	}
	if doc == nil {
		return fmt.Errorf("save profile %q: nil document", name)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("save profile %q: %w", name, err)
	}
	fingerprint, err := mod.Fingerprint(doc.AbilityID, doc.Modifications)
	if err != nil {
		return fmt.Errorf("save profile %q: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (name, ability_id, fingerprint, document)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ability_id = excluded.ability_id,
			fingerprint = excluded.fingerprint,
			document = excluded.document,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, name, doc.AbilityID, fingerprint, string(data))
	if err != nil {
		return fmt.Errorf("save profile %q: %w", name, err)
	}
	return nil
}

// Get loads a profile by name. Returns ErrNotFound when the name is unknown.
func (s *Store) Get(ctx context.Context, name string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, ability_id, fingerprint, document, created_at, updated_at
		FROM profiles WHERE name = ?
	`, name)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %q: %w", name, err)
	}
	return p, nil
}

// List returns all profiles ordered by name. Documents are parsed; a row
// with an unparsable document fails the whole listing, since the store only
// accepts documents it serialized itself.
func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ability_id, fingerprint, document, created_at, updated_at
		FROM profiles ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("list profiles: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// Delete removes a profile by name. Returns ErrNotFound when nothing was
// deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete profile %q: %w", name, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p         Profile
		docJSON   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&p.Name, &p.AbilityID, &p.Fingerprint, &docJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var doc mod.Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("parse stored document: %w", err)
	}
	p.Document = &doc

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}
