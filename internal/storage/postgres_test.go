package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyConnectionErrorsAreTransient(t *testing.T) {
	codes := []string{"08006", "08001", "53300", "57P03"}
	for _, code := range codes {
		err := classify(&pgconn.PgError{Code: code, Message: "down"})
		assert.ErrorIs(t, err, ErrUnavailable, "code %s", code)
	}
}

func TestClassifyIntegrityErrorsAreFatal(t *testing.T) {
	// Integrity violations outside the dedup path, and internal errors.
	codes := []string{"23503", "23505", "22P02", "XX001"}
	for _, code := range codes {
		err := classify(&pgconn.PgError{Code: code, Message: "bad"})
		assert.ErrorIs(t, err, ErrCorrupt, "code %s", code)
	}
}

func TestClassifyPassesThroughUnknownErrors(t *testing.T) {
	sentinel := errors.New("something else")
	err := classify(sentinel)
	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrCorrupt)
}
