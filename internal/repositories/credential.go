package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// CredentialRepository implements [models.Repository] for [models.Credential] persistence.
type CredentialRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Credential] = (*CredentialRepository)(nil)

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential. It fails if the profile already has one.
func (r *CredentialRepository) Create(c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	identity, err := nullJSON(c.Identity)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (profile, token, identity_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, c.Profile, c.Token, identity, c.CreatedAt(), c.UpdatedAt()); err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// Get retrieves the credential stored for a profile.
func (r *CredentialRepository) Get(profile string) (*models.Credential, error) {
	query := `
		SELECT profile, token, identity_json, created_at, updated_at
		FROM credentials
		WHERE profile = ?
	`

	c, err := scanCredential(r.db.QueryRow(query, profile))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", shared.ErrNoCredential, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return c, nil
}

// Update replaces the token and cached identity of an existing credential.
func (r *CredentialRepository) Update(c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	identity, err := nullJSON(c.Identity)
	if err != nil {
		return err
	}

	c.Touch()
	query := `
		UPDATE credentials
		SET token = ?, identity_json = ?, updated_at = ?
		WHERE profile = ?
	`

	result, err := r.db.Exec(query, c.Token, identity, c.UpdatedAt(), c.Profile)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: profile %s", shared.ErrNoCredential, c.Profile)
	}
	return nil
}

// Delete removes the credential of a profile. Deleting a missing credential is not an error.
func (r *CredentialRepository) Delete(profile string) error {
	if _, err := r.db.Exec("DELETE FROM credentials WHERE profile = ?", profile); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// List retrieves stored credentials. The only supported criterion is "profile".
func (r *CredentialRepository) List(criteria map[string]any) ([]*models.Credential, error) {
	query := `SELECT profile, token, identity_json, created_at, updated_at FROM credentials`
	var args []any
	if profile, ok := criteria["profile"]; ok {
		query += " WHERE profile = ?"
		args = append(args, profile)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		credentials = append(credentials, c)
	}
	return credentials, rows.Err()
}

// Save upserts the credential for its profile.
func (r *CredentialRepository) Save(c *models.Credential) error {
	err := r.Update(c)
	if errors.Is(err, shared.ErrNoCredential) {
		return r.Create(c)
	}
	return err
}

// Load is [CredentialRepository.Get] under the name the session store expects.
func (r *CredentialRepository) Load(profile string) (*models.Credential, error) {
	return r.Get(profile)
}

func scanCredential(row scanner) (*models.Credential, error) {
	var (
		profile   string
		token     string
		identity  sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&profile, &token, &identity, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	id, err := fromNullJSON[models.Identity](identity)
	if err != nil {
		return nil, err
	}

	c := &models.Credential{Profile: profile, Token: token, Identity: id}
	c.SetTimestamps(createdAt, updatedAt)
	return c, nil
}
