package sqlutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestNullUUID(t *testing.T) {
	assert.False(t, ToNullUUID(nil).Valid)
	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))

	id := uuid.New()
	got := FromNullUUID(ToNullUUID(&id))
	if assert.NotNil(t, got) {
		assert.Equal(t, id, *got)
	}
}

func TestSqlTime(t *testing.T) {
	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))

	now := time.Now()
	got := FromSqlTime(ToSqlTime(&now))
	if assert.NotNil(t, got) {
		assert.True(t, now.Equal(*got))
	}
}

func TestNullRawMessage(t *testing.T) {
	assert.False(t, ToNullRawMessage(nil).Valid)
	assert.Nil(t, FromNullRawMessage(ToNullRawMessage(nil)))

	raw := json.RawMessage(`{"colour":"red"}`)
	assert.JSONEq(t, string(raw), string(FromNullRawMessage(ToNullRawMessage(raw))))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
