package postgres

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestConnect_BadDSNIsPersistenceError(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://u:p@localhost:notaport/db", "test")
	assert.ErrorIs(t, err, storage.ErrPersistence)
}
