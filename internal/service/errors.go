package service

import (
	"errors"
	"sort"
	"strings"

	"storefront/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("you do not have permission to perform this action")
	ErrConflict           = errors.New("conflict")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ValidationError carries per-field messages, rendered as {"field": ["msg"]}.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError(field, msg string) *ValidationError {
	return (&ValidationError{}).Add(field, msg)
}

func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// storeErr maps store sentinels to service errors. Constraint violations
// become a validation error on the column the constraint names.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		field := constraintField(ce.Table, ce.Constraint)
		if errors.Is(ce.Err, store.ErrDuplicate) {
			return NewValidationError(field, "An object with this value already exists.")
		}
		return NewValidationError(field, "Object is referenced by or references a missing record.")
	}
	return err
}

// constraintField derives the API field from a postgres default constraint
// name such as "brands_slug_key" or "products_category_id_fkey".
func constraintField(table, constraint string) string {
	if strings.HasPrefix(constraint, "unique_") || constraint == "" {
		return "non_field_errors"
	}
	name := strings.TrimSuffix(strings.TrimSuffix(constraint, "_fkey"), "_key")
	if table != "" && strings.HasPrefix(name, table+"_") {
		name = strings.TrimPrefix(name, table+"_")
	} else if i := strings.Index(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "_id")
}
