package repository

import (
	"errors"

	"gorm.io/gorm"
)

// IsDuplicateKey reports whether err comes from a unique index violation.
// The gorm.DB must be opened with TranslateError enabled.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
