package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"koubs-backend/lib/runlog/db"
	"koubs-backend/lib/testutil"
)

func TestStore(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "runlog",
		DbSchema: db.Schema,
	})
	defer cleanup()
	store := NewStore(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	history, err := store.History(ctx, "200101001", 10)
	require.NoError(t, err)
	require.Len(t, history, 0)

	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	second := time.Now().Truncate(time.Second)
	err = store.Record(ctx, "200101001", Run{Time: first, Semesters: 6, Courses: 38})
	require.NoError(t, err)
	err = store.Record(ctx, "200101001", Run{Time: second, Semesters: 7, Courses: 44})
	require.NoError(t, err)
	err = store.Record(ctx, "someone-else", Run{Time: second, Semesters: 1, Courses: 4})
	require.NoError(t, err)

	history, err = store.History(ctx, "200101001", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, second.Unix(), history[0].Time.Unix())
	require.Equal(t, 7, history[0].Semesters)
	require.Equal(t, 44, history[0].Courses)
	require.Equal(t, first.Unix(), history[1].Time.Unix())

	history, err = store.History(ctx, "200101001", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
}
