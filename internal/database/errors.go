package database

import "errors"

// ErrInvalidDatabaseURL indicates the provided database URL could not be parsed.
var ErrInvalidDatabaseURL = errors.New("invalid database URL")

// ErrConnectionFailed indicates a connection to the database could not be established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrUnsupportedScheme indicates the database URL names a driver this tool does not ship.
var ErrUnsupportedScheme = errors.New("unsupported database scheme (use postgres, sqlite or mysql)")

// ErrNoRows is returned by QueryRow when the query matched nothing.
var ErrNoRows = errors.New("no rows in result set")
