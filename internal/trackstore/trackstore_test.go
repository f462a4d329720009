package trackstore

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raceplayback/server/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// straightBoundaries is a 100-long straight with a 10-wide track.
func straightBoundaries(track string) Boundaries {
	return Boundaries{
		Track: track,
		Left:  []core.Vec3{{X: 0, Y: 40, Z: 5}, {X: 50, Y: 40, Z: 5}, {X: 100, Y: 40, Z: 5}},
		Right: []core.Vec3{{X: 0, Y: 40, Z: -5}, {X: 100, Y: 40, Z: -5}},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	gs, err := OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })
	return map[string]Store{"file": fs, "sqlite": gs}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "monza")
			assert.ErrorIs(t, err, ErrTrackNotScanned)

			require.NoError(t, s.Save(ctx, straightBoundaries("Monza")))
			require.NoError(t, s.Save(ctx, straightBoundaries("spa")))

			got, err := s.Load(ctx, " MONZA ")
			require.NoError(t, err)
			assert.Equal(t, "monza", got.Track)
			assert.Equal(t, straightBoundaries("").Left, got.Left)
			assert.Equal(t, straightBoundaries("").Right, got.Right)

			tracks, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"monza", "spa"}, tracks)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, straightBoundaries("imola")))
			b := straightBoundaries("imola")
			b.Left = b.Left[:2]
			require.NoError(t, s.Save(ctx, b))

			got, err := s.Load(ctx, "imola")
			require.NoError(t, err)
			assert.Len(t, got.Left, 2)

			tracks, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"imola"}, tracks)
		})
	}
}

func TestStore_SaveValidates(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Save(ctx, Boundaries{Track: "x", Left: []core.Vec3{{}}}))
			assert.Error(t, s.Save(ctx, Boundaries{Left: straightBoundaries("").Left, Right: straightBoundaries("").Right}))
		})
	}
}

func TestGormStore_RejectsVerticalEdge(t *testing.T) {
	ctx := context.Background()
	gs, err := OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer gs.Close()

	b := straightBoundaries("monza")
	b.Left = []core.Vec3{{X: 1, Y: 0, Z: 1}, {X: 1, Y: 5, Z: 1}}
	err = gs.Save(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left edge")

	_, err = gs.Load(ctx, "monza")
	assert.ErrorIs(t, err, ErrTrackNotScanned)
}

func TestGormStore_Stats(t *testing.T) {
	ctx := context.Background()
	gs, err := OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer gs.Close()

	require.NoError(t, gs.Save(ctx, straightBoundaries("monza")))
	stats, err := gs.Stats(ctx, "monza")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, stats.LeftLength, 1e-9)
	assert.InDelta(t, 100.0, stats.RightLength, 1e-9)
	assert.Equal(t, 3, stats.LeftPoints)
	assert.Equal(t, 2, stats.RightPoints)
	assert.InDelta(t, 1.0, stats.LengthRatio, 1e-9)

	_, err = gs.Stats(ctx, "spa")
	assert.ErrorIs(t, err, ErrTrackNotScanned)
}

func TestNew(t *testing.T) {
	s, err := New(Config{Type: "file", Dir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(Config{Type: "sqlite", SQLitePath: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(Config{Type: "mongo"}, zerolog.Nop())
	assert.Error(t, err)
}

type countingStore struct {
	Store
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context, track string) (Boundaries, error) {
	c.loads.Add(1)
	return c.Store.Load(ctx, track)
}

func TestCenterlineCache(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Save(ctx, straightBoundaries("monza")))
	store := &countingStore{Store: fs}

	cache := NewCenterlineCache(store, 50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl, err := cache.Get(ctx, "Monza")
			assert.NoError(t, err)
			assert.Equal(t, 51, cl.Len())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, []string{"monza"}, cache.Tracks())

	_, err = cache.Get(ctx, "spa")
	assert.ErrorIs(t, err, ErrTrackNotScanned)
	assert.Equal(t, []string{"monza"}, cache.Tracks(), "failures are not cached")

	cache.Invalidate("MONZA")
	assert.Empty(t, cache.Tracks())
	_, err = cache.Get(ctx, "monza")
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.loads.Load())

	assert.Equal(t, 1, cache.Clear())
	assert.Empty(t, cache.Tracks())
}

func TestOrderPath(t *testing.T) {
	shuffled := []core.Vec3{{X: 0}, {X: 3}, {X: 1}, {X: 4}, {X: 2}}
	got := OrderPath(shuffled)
	assert.Equal(t, []core.Vec3{{X: 0}, {X: 1}, {X: 2}, {X: 3}, {X: 4}}, got)
	assert.Equal(t, core.Vec3{X: 3}, shuffled[1], "input is not modified")

	assert.Nil(t, OrderPath(nil))

	tie := OrderPath([]core.Vec3{{X: 0}, {X: 1}, {X: -1}})
	assert.Equal(t, core.Vec3{X: 1}, tie[1], "first candidate wins ties")
}

func TestScanEdges(t *testing.T) {
	left := []core.Vec3{{X: 0, Z: 5}, {X: 100, Z: 5}, {X: 50, Z: 5}}
	right := []core.Vec3{{X: 100, Z: -5}, {X: 0, Z: -5}}

	res, err := ScanEdges(context.Background(), left, right)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Left.TotalLength(), 1e-9)
	assert.InDelta(t, 1.0, res.Ratio, 1e-9)
	assert.Empty(t, res.Warning)

	b := res.Boundaries("Monza")
	assert.Equal(t, "monza", b.Track)
	assert.Equal(t, []core.Vec3{{X: 0, Z: 5}, {X: 50, Z: 5}, {X: 100, Z: 5}}, b.Left)
}

func TestScanEdges_Warnings(t *testing.T) {
	left := []core.Vec3{{X: 0}, {X: 100}}
	right := []core.Vec3{{X: 0}, {X: 50}}

	res, err := ScanEdges(context.Background(), left, right)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Ratio, 1e-9)
	assert.Contains(t, res.Warning, "differ significantly")

	_, err = ScanEdges(context.Background(), nil, right)
	assert.ErrorIs(t, err, ErrEmptyEdge)
}

func TestReadPointsCSV(t *testing.T) {
	in := "x,y,z\n1,40,2\n# comment\n\n3.5, 40, -2\n"
	points, err := ReadPointsCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []core.Vec3{{X: 1, Y: 40, Z: 2}, {X: 3.5, Y: 40, Z: -2}}, points)

	_, err = ReadPointsCSV(strings.NewReader("1,2\n"))
	assert.Error(t, err)
	_, err = ReadPointsCSV(strings.NewReader("1,2,zz\n"))
	assert.Error(t, err)
}
