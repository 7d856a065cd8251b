package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/scan/coverage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePoints(n int) []scan.Point3D {
	points := make([]scan.Point3D, n)
	for i := range points {
		points[i] = scan.Point3D{
			Position:   [3]float32{float32(i) * 0.01, float32(i) * 0.02, 0.5},
			Normal:     [3]float32{0, 0, 1},
			Confidence: 0.9,
		}
	}
	return points
}

func TestSaveAndLatestRoundTrip(t *testing.T) {
	s := openTestStore(t)
	sessionID := uuid.NewString()

	want := &Checkpoint{
		SessionID:  sessionID,
		Phase:      scan.PhaseLidar,
		TakenAt:    time.Unix(1700000000, 0),
		FrameCount: 42,
		Points:     samplePoints(100),
		Coverage: []coverage.CellRecord{
			{X: 0, Y: 0, Z: 5, Count: 12},
			{X: -1, Y: 3, Z: 5, Count: 7},
		},
		Metrics: scan.QualityMetrics{
			PointDensity:        150,
			SurfaceCompleteness: 0.97,
			NoiseLevel:          0.01,
			NormalConsistency:   0.95,
			SurfaceContinuity:   0.93,
			FeatureQuality:      0.85,
		},
		Settings: scan.QualitySettings{
			MeshDensity:          0.8,
			ProcessingQuality:    0.8,
			ScanResolution:       0.9,
			LightingCompensation: 0.5,
			MotionTolerance:      0.4,
		},
	}

	id, err := s.Save(want)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	got, err := s.Latest(sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, scan.PhaseLidar, got.Phase)
	assert.Equal(t, int64(42), got.FrameCount)
	assert.True(t, got.TakenAt.Equal(want.TakenAt), "TakenAt = %v, want %v", got.TakenAt, want.TakenAt)
	if diff := cmp.Diff(want.Points, got.Points); diff != "" {
		t.Errorf("points round trip mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Coverage, got.Coverage); diff != "" {
		t.Errorf("coverage round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.Settings, got.Settings)
}

func TestLatestPicksNewest(t *testing.T) {
	s := openTestStore(t)
	sessionID := uuid.NewString()

	for i := 1; i <= 3; i++ {
		_, err := s.Save(&Checkpoint{
			SessionID:  sessionID,
			Phase:      scan.PhaseLidar,
			TakenAt:    time.Unix(int64(1000*i), 0),
			FrameCount: int64(i * 10),
		})
		require.NoError(t, err, "Save %d", i)
	}

	got, err := s.Latest(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.FrameCount, "Latest should return the newest checkpoint")
}

func TestLatestMissingSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Latest(uuid.NewString())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestDeleteClearsSession(t *testing.T) {
	s := openTestStore(t)
	keepID := uuid.NewString()
	dropID := uuid.NewString()

	for _, sid := range []string{keepID, dropID} {
		_, err := s.Save(&Checkpoint{SessionID: sid, Phase: scan.PhaseLidar})
		require.NoError(t, err)
	}

	n, err := s.Delete(dropID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Latest(dropID)
	assert.ErrorIs(t, err, ErrNoCheckpoint, "deleted session still has a checkpoint")
	_, err = s.Latest(keepID)
	assert.NoError(t, err, "unrelated session lost its checkpoint")
}

func TestSessionsOrdering(t *testing.T) {
	s := openTestStore(t)
	older := uuid.NewString()
	newer := uuid.NewString()

	_, err := s.Save(&Checkpoint{SessionID: older, Phase: scan.PhaseLidar, TakenAt: time.Unix(100, 0)})
	require.NoError(t, err)
	_, err = s.Save(&Checkpoint{SessionID: newer, Phase: scan.PhaseLidar, TakenAt: time.Unix(200, 0)})
	require.NoError(t, err)

	ids, err := s.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{newer, older}, ids)
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	sessionID := uuid.NewString()

	for i := 1; i <= 5; i++ {
		_, err := s.Save(&Checkpoint{
			SessionID:  sessionID,
			Phase:      scan.PhaseLidar,
			TakenAt:    time.Unix(int64(i), 0),
			FrameCount: int64(i),
		})
		require.NoError(t, err)
	}

	removed, err := s.Prune(sessionID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	got, err := s.Latest(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.FrameCount, "newest checkpoint lost")
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	sessionID := uuid.NewString()

	_, err := s.Save(&Checkpoint{SessionID: sessionID, Phase: scan.PhasePhotogrammetry})
	require.NoError(t, err)

	got, err := s.Latest(sessionID)
	require.NoError(t, err)
	assert.Empty(t, got.Points)
	assert.Empty(t, got.Coverage)
	assert.False(t, got.TakenAt.IsZero(), "Save should stamp a capture time when none is supplied")
}

func TestSaveRejectsMissingSessionID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Save(&Checkpoint{Phase: scan.PhaseLidar})
	assert.Error(t, err, "Save accepted a checkpoint with no session id")
	_, err = s.Save(nil)
	assert.Error(t, err, "Save accepted a nil checkpoint")
}

func TestBlobRoundTripCompresses(t *testing.T) {
	points := samplePoints(5000)
	blob, err := serializePoints(points)
	require.NoError(t, err)
	// 5000 points of 7 float32 fields is ~140 KB raw; the regular
	// structure should compress well below that.
	assert.Less(t, len(blob), 5000*28, "blob did not compress")

	back, err := deserializePoints(blob)
	require.NoError(t, err)
	if diff := cmp.Diff(points, back); diff != "" {
		t.Errorf("round trip corrupted points (-want +got):\n%s", diff)
	}

	_, err = deserializePoints([]byte("not gzip"))
	assert.Error(t, err, "garbage blob should fail to decode")
}
