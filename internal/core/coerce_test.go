package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoerce(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, int64(3), Coerce(TypeInt, 3.0))
	assert.Nil(t, Coerce(TypeInt, 3.5))
	assert.Equal(t, 1.5, Coerce(TypeFloat, "1.5"))
	assert.Equal(t, true, Coerce(TypeBool, "true"))
	assert.Equal(t, ts, Coerce(TypeTimestamp, ts))
	assert.Nil(t, Coerce(TypeTimestamp, "2025-01-02"))
	assert.Equal(t, `{"a":1}`, Coerce(TypeJSON, map[string]any{"a": 1}))
	assert.Equal(t, "42", Coerce(TypeString, 42.0))
	assert.Nil(t, Coerce(TypeString, nil))
}

func TestPhysicalSchemaDemotes(t *testing.T) {
	tbl := NewTable(Schema{{Name: "port", Type: TypeInt}, {Name: "ok", Type: TypeBool}})
	tbl.Append(Row{"port": int64(80), "ok": true}, Row{"port": "n/a", "ok": nil})

	s := tbl.PhysicalSchema()
	assert.Equal(t, TypeString, s[0].Type)
	assert.Equal(t, TypeBool, s[1].Type)
	assert.Equal(t, TypeInt, tbl.Schema[0].Type)
}
