package models

import (
	"context"
	"fmt"
	"strings"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
)

// UserModel reads and writes the users collection. Only unrestricted
// (admin) callers may use it.
type UserModel struct {
	base
}

// FindByUsername looks a user up by its unique username.
func (m *UserModel) FindByUsername(ctx context.Context, caller access.Caller, username string) (User, error) {
	const op = "find_by_username"

	if err := m.authorize(caller, access.Read, access.Account(username)); err != nil {
		return User{}, m.done(op, caller.String(), err, "username", username)
	}

	user, err := findOne[User](ctx, &m.base, docstore.Filter{"username": username})
	return user, m.done(op, caller.String(), err, "username", username)
}

// Insert creates a user unless the username is taken.
func (m *UserModel) Insert(ctx context.Context, caller access.Caller, username, email, role string) (User, error) {
	const op = "insert"

	if err := m.authorize(caller, access.Write, access.Account(username)); err != nil {
		return User{}, m.done(op, caller.String(), err, "username", username)
	}

	user := User{
		Username: username,
		Email:    email,
		Role:     strings.ToLower(role),
	}
	if err := m.check(user); err != nil {
		return User{}, m.done(op, caller.String(), err, "username", username)
	}

	stored, err := insertUnique(ctx, &m.base,
		docstore.Filter{"username": username},
		user,
		fmt.Sprintf("Username %s already exists", username),
	)
	return stored, m.done(op, caller.String(), err, "username", username)
}
