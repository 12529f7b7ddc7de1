package segcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masphdtrain25/MasPhD/internal/darwin"
)

func key(rid string) Key {
	return Key{RID: rid, First: "SOTON", Second: "SOTPKWY", PlannedDep: "09:00"}
}

func s(v string) *string { return &v }

func TestTouchCreatesAndUpdates(t *testing.T) {
	c := New(10)

	_, ok := c.Get(key("X1"))
	assert.False(t, ok)

	st := c.Touch(key("X1"), s("09:03"), darwin.KindEstimate, false)
	assert.Equal(t, "09:03", *st.LastDepTime)
	assert.Equal(t, darwin.KindEstimate, st.LastKind)
	assert.False(t, st.ActualSaved)
	assert.Equal(t, 1, st.LastSeenOrder)

	st = c.Touch(key("X1"), s("09:04"), darwin.KindEstimate, false)
	assert.Equal(t, "09:04", *st.LastDepTime)
	assert.Equal(t, 2, st.LastSeenOrder)
	assert.Equal(t, 1, c.Len())
}

func TestTouchUpgradesToActual(t *testing.T) {
	c := New(10)

	c.Touch(key("X1"), s("09:03"), darwin.KindEstimate, false)
	st := c.Touch(key("X1"), s("09:04"), darwin.KindEstimate, true)
	assert.Equal(t, darwin.KindActual, st.LastKind)
}

func TestMarkActualSavedSticksAcrossTouches(t *testing.T) {
	c := New(10)

	c.Touch(key("X1"), s("09:04"), darwin.KindActual, true)
	c.MarkActualSaved(key("X1"))

	st, ok := c.Get(key("X1"))
	require.True(t, ok)
	assert.True(t, st.ActualSaved)

	// further touches never revert the flag
	st = c.Touch(key("X1"), s("09:05"), darwin.KindActual, true)
	assert.True(t, st.ActualSaved)
}

func TestMarkActualSavedMissingKeyIsNoop(t *testing.T) {
	c := New(10)
	c.MarkActualSaved(key("ghost"))
	_, ok := c.Get(key("ghost"))
	assert.False(t, ok)
}

func TestEvictionDropsLeastRecentlyTouched(t *testing.T) {
	c := New(3)

	for i := 0; i < 5; i++ {
		c.Touch(key(fmt.Sprintf("R%d", i)), s("09:00"), darwin.KindEstimate, false)
	}
	assert.Equal(t, 3, c.Len())

	_, ok := c.Get(key("R0"))
	assert.False(t, ok)
	_, ok = c.Get(key("R1"))
	assert.False(t, ok)
	for i := 2; i < 5; i++ {
		_, ok = c.Get(key(fmt.Sprintf("R%d", i)))
		assert.True(t, ok, "R%d should survive", i)
	}
}

func TestTouchRefreshesRecency(t *testing.T) {
	c := New(2)

	c.Touch(key("A"), s("09:00"), darwin.KindEstimate, false)
	c.Touch(key("B"), s("09:01"), darwin.KindEstimate, false)
	// touching A again makes B the eviction candidate
	c.Touch(key("A"), s("09:02"), darwin.KindEstimate, false)
	c.Touch(key("C"), s("09:03"), darwin.KindEstimate, false)

	_, ok := c.Get(key("A"))
	assert.True(t, ok)
	_, ok = c.Get(key("B"))
	assert.False(t, ok)
	_, ok = c.Get(key("C"))
	assert.True(t, ok)
}
