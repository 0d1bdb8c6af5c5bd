package repository

import (
	"errors"
	"fmt"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrCategoryNotFound = fmt.Errorf("category %w", model.ErrNotFound)
	ErrEntryNotFound    = fmt.Errorf("entry %w", model.ErrNotFound)
	ErrUnknownDriver    = errors.New("unknown store driver")
)

// storageErr marks a backend failure as model.ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}
