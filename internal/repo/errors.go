package repo

import "errors"

// ErrUnsupportedURL — схема database.url не поддерживается.
var ErrUnsupportedURL = errors.New("unsupported database url")
