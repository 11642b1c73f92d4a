package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}

// configString encodes an optional session configuration
func configString(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		p, err := json.Marshal(c)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}
