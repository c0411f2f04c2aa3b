package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"carrental/internal/domain"
	"carrental/internal/models"
)

const userSelect = `SELECT id, email, first_name, last_name, phone, telegram_id, role, created_at, updated_at
              FROM users`

func scanUser(row scanner) (*models.User, error) {
	var (
		u     models.User
		email sql.NullString
	)
	err := row.Scan(&u.ID, &email, &u.FirstName, &u.LastName, &u.Phone, &u.TelegramID, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (email, first_name, last_name, phone, telegram_id, role, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	user.Email = normalizeEmail(user.Email)
	now := db.now()
	result, err := db.ExecContext(ctx, query,
		nullString(user.Email),
		user.FirstName,
		user.LastName,
		user.Phone,
		user.TelegramID,
		user.Role,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// UpsertUser creates the user or refreshes the profile of the user with the same email.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	if user.Email == "" {
		return db.CreateUser(ctx, user)
	}
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	query := `INSERT INTO users (email, first_name, last_name, phone, telegram_id, role, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(email) DO UPDATE SET
                first_name = excluded.first_name,
                last_name = excluded.last_name,
                phone = excluded.phone,
                telegram_id = excluded.telegram_id,
                role = excluded.role,
                updated_at = excluded.updated_at`
	now := db.now()
	email := normalizeEmail(user.Email)
	_, err := db.ExecContext(ctx, query, email, user.FirstName, user.LastName, user.Phone, user.TelegramID, user.Role, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", email, err)
	}
	stored, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, userSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, userSelect+" WHERE email = ?", normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %s", normalizeEmail(email))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// GetOrCreateGuest resolves a renter by email, creating a guest user on first sight.
// An existing user keeps its role; blank contact fields are filled in.
func (db *DB) GetOrCreateGuest(ctx context.Context, info models.GuestInfo) (*models.User, error) {
	query := `INSERT INTO users (email, first_name, last_name, phone, role, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(email) DO UPDATE SET
                phone = CASE WHEN users.phone = '' THEN excluded.phone ELSE users.phone END,
                last_name = CASE WHEN users.last_name = '' THEN excluded.last_name ELSE users.last_name END,
                updated_at = excluded.updated_at`
	email := normalizeEmail(info.Email)
	now := db.now()
	_, err := db.ExecContext(ctx, query, email, info.FirstName, info.LastName, info.Phone, models.RoleGuest, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve guest %s: %w", email, err)
	}
	return db.GetUserByEmail(ctx, email)
}

func (db *DB) ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, userSelect+" WHERE role = ? ORDER BY id", role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
