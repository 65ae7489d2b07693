package records

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gr-butler/wxcore/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyHighLowIndependentResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.ini")
	d, err := NewDailyHighLow(persist.NewFile(path))
	require.NoError(t, err)

	d.Observe(5, t0)
	d.Observe(15, t0.Add(time.Hour))

	closed := d.ResetMidnight(12, t0.Add(2*time.Hour))
	assert.Equal(t, 15.0, closed.High.Value)
	assert.Equal(t, 5.0, closed.Low.Value)

	m := d.Midnight()
	assert.Equal(t, 12.0, m.High.Value)
	assert.Equal(t, 12.0, m.Low.Value)

	// the 9am pair did not reset
	n := d.NineAm()
	assert.Equal(t, 15.0, n.High.Value)
	assert.Equal(t, 5.0, n.Low.Value)

	reloaded, err := NewDailyHighLow(persist.NewFile(path))
	require.NoError(t, err)
	assert.Equal(t, 12.0, reloaded.Midnight().High.Value)
	assert.Equal(t, 5.0, reloaded.NineAm().Low.Value)

	d.ResetNineAm(13, t0.Add(3*time.Hour))
	assert.Equal(t, 13.0, d.NineAm().Low.Value)
}
