package domain

import (
	"database/sql"
)

type UserAccount struct {
	ID       int64          `json:"id"`
	Username string         `json:"username"`
	Password string         `json:"-"`
	FullName string         `json:"fullName"`
	Email    sql.NullString `json:"email"`
	Created  sql.NullTime   `json:"created"`
	Enabled  sql.NullBool   `json:"enabled"`
	Roles    []string       `json:"roles"`
}

func (u *UserAccount) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *UserAccount) IsEnabled() bool {
	return !u.Enabled.Valid || u.Enabled.Bool
}
