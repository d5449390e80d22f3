package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"knowledgebase/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	UpdateProfile(ctx context.Context, id string, email, fullName *string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hashedPassword string, at time.Time) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `
	id, username, email, full_name, hashed_password, is_admin, is_active,
	notebook_id, created_at, updated_at
`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :email, :full_name, :hashed_password, :is_admin,
		        :is_active, :notebook_id, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, user)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	err := r.db.GetContext(ctx, &user, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int

	query := `SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`

	if err := r.db.GetContext(ctx, &count, query, username, email); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users := []*models.User{}

	query := `SELECT ` + userColumns + ` FROM users
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM users`

	err := r.db.GetContext(ctx, &count, query)
	return count, err
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, email, fullName *string, at time.Time) error {
	query := `UPDATE users
		SET email = COALESCE($2, email),
		    full_name = COALESCE($3, full_name),
		    updated_at = $4
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, email, fullName, at)
	return err
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, hashedPassword string, at time.Time) error {
	query := `UPDATE users SET hashed_password = $2, updated_at = $3 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, hashedPassword, at)
	return err
}
