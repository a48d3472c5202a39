// Package repository holds the storage side of the service: MySQL
// backed repositories and in-process equivalents that satisfy the same
// interfaces.  Sentinel values defined here are specific to identity
// storage; catalog and booking failures use the domain error kinds so
// handlers can map them without knowing which store produced them.
package repository

import "errors"

// ErrEmailExists is returned when registering an address that is
// already taken.  Handlers translate it into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is the username counterpart of ErrEmailExists.
var ErrUsernameExists = errors.New("username already exists")

// ErrTokenInvalid covers unknown, revoked and expired refresh tokens.
var ErrTokenInvalid = errors.New("refresh token invalid")
