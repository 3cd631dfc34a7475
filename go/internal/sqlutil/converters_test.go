package sqlutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableConverters(t *testing.T) {
	assert.Nil(t, FromPgUUID(ToPgUUID(nil)))
	id := uuid.New()
	got := FromPgUUID(ToPgUUID(&id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)

	assert.Nil(t, FromPgTimestamptz(ToPgTimestamptz(nil)))
	now := time.Now()
	ts := FromPgTimestamptz(ToPgTimestamptz(&now))
	require.NotNil(t, ts)
	assert.True(t, now.Equal(*ts))

	assert.Equal(t, "fallback", FromPgTextDefault(ToPgText(nil), "fallback"))
	reason := "duplicate"
	assert.Equal(t, "duplicate", *FromPgText(ToPgText(&reason)))
}

func TestAmounts(t *testing.T) {
	d, err := ParseAmount("101000.00")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(101000)))
	assert.Equal(t, "101000.00", AmountParam(d))

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}
