// Package storage holds helpers shared by the result store and archive
// implementations in its subpackages.
package storage

import (
	"errors"
	"fmt"
)

// ErrInvalidPage is returned for a negative offset or non-positive limit.
var ErrInvalidPage = errors.New("invalid page")

// CheckPage validates pagination arguments.
func CheckPage(limit, offset int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidPage, limit)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset must not be negative, got %d", ErrInvalidPage, offset)
	}
	return nil
}
