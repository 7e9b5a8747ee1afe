package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/bcrypt"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/core"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

// ErrBadCredentials is returned by VerifyPassword for an unknown user, a
// disabled account or a wrong password alike.
var ErrBadCredentials = errors.New("bad credentials")

// UserAccountRepository provides persistence methods for the users and user_roles tables.
type UserAccountRepository struct {
	db    *sql.DB
	d     Dialect
	clock core.Clock
}

func NewUserAccountRepository(db *sql.DB, d Dialect, clock core.Clock) *UserAccountRepository {
	return &UserAccountRepository{db: db, d: d, clock: clock}
}

const userColumns = `id, username, password, full_name, email, created, enabled`

// Save inserts a new user with a bcrypt hash of password and its roles.
// Created is set to now if it's not provided.
func (r *UserAccountRepository) Save(ctx context.Context, u *domain.UserAccount, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	u.Password = string(hash)
	if !u.Created.Valid {
		u.Created = sql.NullTime{Time: r.clock.Now().UTC(), Valid: true}
	}
	if !u.Enabled.Valid {
		u.Enabled = sql.NullBool{Bool: true, Valid: true}
	}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, r.d,
			`INSERT INTO users (username, password, full_name, email, created, enabled) VALUES (?, ?, ?, ?, ?, ?)`,
			u.Username, u.Password, u.FullName, u.Email, r.d.formatNullTime(u.Created), u.Enabled)
		if err != nil {
			return err
		}
		u.ID = id
		for _, role := range u.Roles {
			if _, err := exec(ctx, tx, r.d, `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, id, role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// AddRole grants role to the user. Granting a role twice is a no-op.
func (r *UserAccountRepository) AddRole(ctx context.Context, userID int64, role string) error {
	var n int
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`), userID, role).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = exec(ctx, r.db, r.d, `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role)
	return err
}

func (r *UserAccountRepository) FindByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// FindByRole returns every user holding role, ordered by username.
func (r *UserAccountRepository) FindByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	return r.findMany(ctx, `
		SELECT u.id, u.username, u.password, u.full_name, u.email, u.created, u.enabled
		FROM users u JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role = ?
		ORDER BY u.username`, role)
}

func (r *UserAccountRepository) FindAll(ctx context.Context) ([]domain.UserAccount, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
}

// VerifyPassword returns the enabled user matching username and password.
func (r *UserAccountRepository) VerifyPassword(ctx context.Context, username, password string) (*domain.UserAccount, error) {
	u, err := r.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsEnabled() {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

func (r *UserAccountRepository) findOne(ctx context.Context, query string, args ...any) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := r.db.QueryRowContext(ctx, r.d.rebind(query), args...).Scan(
		&u.ID, &u.Username, &u.Password, &u.FullName, &u.Email, &u.Created, &u.Enabled)
	if err != nil {
		return nil, notFound(err)
	}
	roles, err := r.roles(ctx, []int64{u.ID})
	if err != nil {
		return nil, err
	}
	u.Roles = roles[u.ID]
	return &u, nil
}

func (r *UserAccountRepository) findMany(ctx context.Context, query string, args ...any) ([]domain.UserAccount, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	var users []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.FullName, &u.Email, &u.Created, &u.Enabled); err != nil {
			rows.Close()
			return nil, err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	roles, err := r.roles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Roles = roles[users[i].ID]
	}
	return users, nil
}

func (r *UserAccountRepository) roles(ctx context.Context, userIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(userIDs))
	for _, id := range userIDs {
		rows, err := r.db.QueryContext(ctx, r.d.rebind(`SELECT role FROM user_roles WHERE user_id = ?`), id)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var role string
			if err := rows.Scan(&role); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = append(out[id], role)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		sort.Strings(out[id])
	}
	return out, nil
}
