package availability

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
)

var indexBase = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func hourRange(startHour, endHour int) reservation.TimeRange {
	return reservation.NewTimeRange(
		indexBase.Add(time.Duration(startHour)*time.Hour),
		indexBase.Add(time.Duration(endHour)*time.Hour),
	)
}

func TestIndex_QueryEmpty(t *testing.T) {
	idx := NewIndex()

	assert.Empty(t, idx.Query("spot-1", hourRange(10, 12)))
	assert.Equal(t, 0, idx.Size("spot-1"))
}

func TestIndex_InsertAndQuery(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(10, 12), "res-1"))
	require.NoError(t, idx.Insert("spot-1", hourRange(14, 16), "res-2"))

	tests := []struct {
		name    string
		query   reservation.TimeRange
		wantIDs []string
	}{
		{name: "重なりなし", query: hourRange(12, 14), wantIDs: nil},
		{name: "前の予約と重なる", query: hourRange(11, 13), wantIDs: []string{"res-1"}},
		{name: "後ろの予約と重なる", query: hourRange(15, 17), wantIDs: []string{"res-2"}},
		{name: "両方と重なる", query: hourRange(11, 15), wantIDs: []string{"res-1", "res-2"}},
		{name: "境界が一致する半開区間は空き", query: hourRange(8, 10), wantIDs: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.Query("spot-1", tt.query)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ReservationID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestIndex_Insert_DuplicateID(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(10, 12), "res-1"))

	err := idx.Insert("spot-1", hourRange(14, 16), "res-1")

	assert.ErrorIs(t, err, ErrDuplicateReservation)
	assert.Equal(t, 1, idx.Size("spot-1"))
}

func TestIndex_スポット間は独立(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(10, 12), "res-1"))

	assert.Empty(t, idx.Query("spot-2", hourRange(10, 12)))
	require.NoError(t, idx.Insert("spot-2", hourRange(10, 12), "res-2"))
	assert.Len(t, idx.Query("spot-2", hourRange(10, 12)), 1)
}

func TestIndex_Remove(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(10, 12), "res-1"))
	require.NoError(t, idx.Insert("spot-1", hourRange(14, 16), "res-2"))

	idx.Remove("spot-1", "res-1")

	assert.Equal(t, 1, idx.Size("spot-1"))
	assert.Empty(t, idx.Query("spot-1", hourRange(10, 12)))
	assert.Len(t, idx.Query("spot-1", hourRange(14, 16)), 1)
}

func TestIndex_Remove_冪等(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(10, 12), "res-1"))

	idx.Remove("spot-1", "res-unknown")
	idx.Remove("spot-unknown", "res-1")
	idx.Remove("spot-1", "res-1")
	idx.Remove("spot-1", "res-1")

	assert.Equal(t, 0, idx.Size("spot-1"))
}

func TestIndex_Rebuild(t *testing.T) {
	now := indexBase
	confirmed := func(id string, startHour, endHour int) *reservation.Reservation {
		return &reservation.Reservation{
			ID: id, SpotID: "spot-1", UserID: "user-1",
			Range: hourRange(startHour, endHour), Status: reservation.StatusConfirmed,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	cancelled := confirmed("res-cancelled", 6, 8)
	cancelled.Status = reservation.StatusCancelled

	// 順不同で渡しても Start 昇順に整列される
	idx := NewIndex()
	require.NoError(t, idx.Insert("spot-1", hourRange(0, 1), "stale"))
	idx.Rebuild("spot-1", []*reservation.Reservation{
		confirmed("res-2", 14, 16),
		cancelled,
		confirmed("res-1", 10, 12),
	})

	assert.Equal(t, 2, idx.Size("spot-1"))
	assert.Empty(t, idx.Query("spot-1", hourRange(0, 1)))
	assert.Empty(t, idx.Query("spot-1", hourRange(6, 8)))

	got := idx.Query("spot-1", hourRange(0, 24))
	require.Len(t, got, 2)
	assert.Equal(t, "res-1", got[0].ReservationID)
	assert.Equal(t, "res-2", got[1].ReservationID)
}

// 二分探索による Query が線形走査と同じ結果を返すことをランダム区間で確認する
func TestIndex_Query_線形走査と一致(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	idx := NewIndex()
	var entries []Entry

	// 重ならない区間を敷き詰める
	cursor := 0
	for i := 0; i < 200; i++ {
		gap := rng.Intn(3)
		length := 1 + rng.Intn(4)
		start := cursor + gap
		end := start + length
		cursor = end
		id := fmt.Sprintf("res-%d", i)
		r := hourRange(start, end)
		require.NoError(t, idx.Insert("spot-1", r, id))
		entries = append(entries, Entry{ReservationID: id, Range: r})
	}

	for trial := 0; trial < 500; trial++ {
		qs := rng.Intn(cursor + 10)
		qe := qs + 1 + rng.Intn(12)
		q := hourRange(qs, qe)

		var want []string
		for _, e := range entries {
			if e.Range.Overlaps(q) {
				want = append(want, e.ReservationID)
			}
		}
		var got []string
		for _, e := range idx.Query("spot-1", q) {
			got = append(got, e.ReservationID)
		}
		require.Equal(t, want, got, "query [%d,%d)", qs, qe)
	}
}
