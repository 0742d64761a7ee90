package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arlev/storefront-api/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByResetToken(ctx context.Context, token string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hashed string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

const userColumns = `id, email, username, password_hash, first_name, last_name, role,
	picture_url, reset_token, reset_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.Password, &user.FirstName,
		&user.LastName, &user.Role, &user.PictureURL, &user.ResetToken,
		&user.ResetExpiresAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	query := `INSERT INTO users (id, email, username, password_hash, first_name, last_name, role, picture_url, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Username, user.Password,
		user.FirstName, user.LastName, user.Role, user.PictureURL,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *pgUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *pgUserRepo) GetByResetToken(ctx context.Context, token string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token = $1 AND reset_expires_at > NOW()`, token))
}

func (r *pgUserRepo) Update(ctx context.Context, user *model.User) error {
	query := `UPDATE users SET first_name=$2, last_name=$3, picture_url=$4, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.FirstName, user.LastName, user.PictureURL,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = $2, reset_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

func (r *pgUserRepo) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = '', reset_expires_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

func (r *pgUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hashed string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hashed)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (r *pgUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
