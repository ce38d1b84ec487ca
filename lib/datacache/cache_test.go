package datacache

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	koubs "koubs-backend/lib/platforms/koubs"
	"koubs-backend/lib/telemetry"
)

func testAggregate() koubs.Aggregate {
	return koubs.Aggregate{
		"20231": {
			SemesterName: "2023-2024 Güz",
			Courses: []koubs.Course{
				{
					Sequence: "1", Code: "MAT101", Name: "Matematik I",
					Attendance: "Zorunlu", Language: "Türkçe", Ects: "6",
					Bd: "BA", Instructor: "Dr. Ayşe Yılmaz",
					Activities: []koubs.CourseActivity{
						{ActivityType: "Ara Sınav", Score: "85", Percentage: "40", SemesterEffect: "34"},
					},
				},
				{Sequence: "2", Code: "FIZ101", Name: "Fizik I"},
			},
		},
		"20232": {
			SemesterName: "2023-2024 Bahar",
			Courses: []koubs.Course{
				{Sequence: "1", Code: "MAT102", Name: "Matematik II"},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:datacache")
	defer cleanup()

	cache := NewCache(t.TempDir())
	err := cache.Save("200101001", testAggregate())
	require.NoError(t, err)

	loaded, found := cache.Load("200101001")
	require.True(t, found)
	require.Empty(t, cmp.Diff(testAggregate(), loaded,
		cmpopts.IgnoreUnexported(koubs.Course{})))
}

func TestSaveComputesMetadata(t *testing.T) {
	cache := NewCache(t.TempDir())
	err := cache.Save("200101001", testAggregate())
	require.NoError(t, err)

	info, found := cache.Info("200101001")
	require.True(t, found)
	require.NotNil(t, info.Metadata)
	require.Equal(t, "200101001", info.Metadata.Username)
	require.Equal(t, SchemaVersion, info.Metadata.Version)
	require.Equal(t, 2, info.Metadata.TotalSemesters)
	require.Equal(t, 3, info.Metadata.TotalCourses)
	require.Greater(t, info.Metadata.LastUpdated, float64(0))
}

func TestLoadDeletesZeroByteFile(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.NoError(t, os.MkdirAll(cache.dir, 0700))
	path := cache.path("200101001")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, found := cache.Load("200101001")
	require.False(t, found)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestLoadDeletesInvalidShape(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.NoError(t, os.MkdirAll(cache.dir, 0700))
	path := cache.path("200101001")

	for _, contents := range []string{
		"not json at all",
		`{"something": "else"}`,
		`{"metadata": {}}`,
		`["a", "list"]`,
	} {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
		_, found := cache.Load("200101001")
		require.False(t, found, "contents: %s", contents)
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err), "contents: %s", contents)
	}
}

func TestExists(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.False(t, cache.Exists("200101001"))

	require.NoError(t, cache.Save("200101001", testAggregate()))
	require.True(t, cache.Exists("200101001"))

	// zero byte file does not count
	require.NoError(t, os.WriteFile(cache.path("200101001"), nil, 0600))
	require.False(t, cache.Exists("200101001"))
}

func TestInfoFallsBackToStat(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.NoError(t, os.MkdirAll(cache.dir, 0700))
	require.NoError(t, os.WriteFile(cache.path("200101001"), []byte("garbage"), 0600))

	info, found := cache.Info("200101001")
	require.True(t, found)
	require.Nil(t, info.Metadata)
	require.Equal(t, int64(len("garbage")), info.FileSize)
}

func TestClearIsIdempotent(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.NoError(t, cache.Save("200101001", testAggregate()))
	require.NoError(t, cache.Clear("200101001"))
	require.NoError(t, cache.Clear("200101001"))
	require.False(t, cache.Exists("200101001"))
}

func TestEnvelopeShapeOnDisk(t *testing.T) {
	cache := NewCache(t.TempDir())
	require.NoError(t, cache.Save("200101001", testAggregate()))

	serialized, err := os.ReadFile(cache.path("200101001"))
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(serialized, &top))
	require.Contains(t, top, "metadata")
	require.Contains(t, top, "semesters")

	// the internal detail lookup key must never be serialized
	require.NotContains(t, string(serialized), "detailKey")
	require.NotContains(t, string(serialized), "detail_params")
}
