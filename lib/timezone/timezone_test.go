package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsInIstanbul(t *testing.T) {
	now := Now()
	require.Equal(t, Location, now.Location())

	// Türkiye has no DST, the offset is fixed at UTC+3
	_, offset := now.Zone()
	require.Equal(t, 3*60*60, offset)
}

func TestLocationRoundtrip(t *testing.T) {
	utc := time.Date(2024, time.September, 1, 9, 0, 0, 0, time.UTC)
	local := utc.In(Location)
	require.Equal(t, 12, local.Hour())
	require.True(t, utc.Equal(local))
}
