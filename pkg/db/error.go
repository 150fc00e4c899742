package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	message := err.Error()
	switch {
	// PostgreSQL 23505
	case strings.Contains(message, "duplicate key value violates unique constraint"),
		// MySQL 1062
		strings.Contains(message, "Error 1062"),
		// SQLite 2067
		strings.Contains(message, "UNIQUE constraint failed"):
		return true
	}
	return false
}
