package repository

import (
	"fmt"
	"strings"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, msg)
}

// validateEntry requires the upsert key and fills a missing norm from the label.
func validateEntry(e *model.Entry) error {
	switch {
	case strings.TrimSpace(e.CategoryID) == "":
		return invalid("entry category id is required")
	case strings.TrimSpace(e.URL) == "":
		return invalid("entry url is required")
	case strings.TrimSpace(e.Label) == "":
		return invalid("entry label is required")
	}
	if e.Norm == "" {
		e.Norm = normalize.Key(e.Label)
	}
	return nil
}

func validateAlias(a *model.Alias) error {
	switch {
	case strings.TrimSpace(a.EntryID) == "":
		return invalid("alias entry id is required")
	case strings.TrimSpace(a.Label) == "":
		return invalid("alias label is required")
	}
	if a.Norm == "" {
		a.Norm = normalize.Key(a.Label)
	}
	if a.Norm == "" {
		return invalid("alias label has no comparable characters")
	}
	return nil
}
