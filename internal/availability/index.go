package availability

import (
	"errors"
	"sort"
	"sync"

	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
)

var (
	ErrDuplicateReservation = errors.New("同じ予約IDが既に登録されています")
)

// Entry はインデックスに登録された確定予約の区間
type Entry struct {
	ReservationID string
	Range         reservation.TimeRange
}

// spotIntervals はスポット単位の区間集合
// entries は Start 昇順。確定予約同士は重ならない不変条件があるため
// End も昇順となり、二分探索で O(log n + k) の重なり検索ができる
type spotIntervals struct {
	entries []Entry
	ids     map[string]struct{}
}

// Index はスポットごとの確定予約区間を保持する読み取り最適化キャッシュ
// 信頼できる情報源はストアであり、起動時・復旧時に Rebuild で再構築される
// 書き込みはスポットロックを保持したエンジンのみが行う
type Index struct {
	mu    sync.RWMutex
	spots map[string]*spotIntervals
}

// NewIndex は空のインデックスを作成する
func NewIndex() *Index {
	return &Index{spots: make(map[string]*spotIntervals)}
}

// Query は指定区間と重なる確定予約を開始時刻順に返す
// 空スライスはその区間が空いていることを意味する
func (i *Index) Query(spotID string, r reservation.TimeRange) []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	si, ok := i.spots[spotID]
	if !ok {
		return nil
	}

	// End が昇順であることを利用して最初の候補を二分探索する
	first := sort.Search(len(si.entries), func(k int) bool {
		return si.entries[k].Range.End.After(r.Start)
	})

	var result []Entry
	for k := first; k < len(si.entries); k++ {
		if !si.entries[k].Range.Start.Before(r.End) {
			break
		}
		result = append(result, si.entries[k])
	}
	return result
}

// Insert は確定予約の区間を登録する
// 重なり検査は呼び出し側がスポットロック内で Query 済みであることを前提とし、
// ここでは行わない。同じ予約IDの二重登録のみエラーとする
func (i *Index) Insert(spotID string, r reservation.TimeRange, reservationID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	si, ok := i.spots[spotID]
	if !ok {
		si = &spotIntervals{ids: make(map[string]struct{})}
		i.spots[spotID] = si
	}
	if _, exists := si.ids[reservationID]; exists {
		return ErrDuplicateReservation
	}

	pos := sort.Search(len(si.entries), func(k int) bool {
		return si.entries[k].Range.Start.After(r.Start)
	})
	si.entries = append(si.entries, Entry{})
	copy(si.entries[pos+1:], si.entries[pos:])
	si.entries[pos] = Entry{ReservationID: reservationID, Range: r}
	si.ids[reservationID] = struct{}{}
	return nil
}

// Remove は予約の区間を削除する
// リプレイに耐えるため冪等で、存在しない場合は何もしない
func (i *Index) Remove(spotID, reservationID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	si, ok := i.spots[spotID]
	if !ok {
		return
	}
	if _, exists := si.ids[reservationID]; !exists {
		return
	}
	for k, e := range si.entries {
		if e.ReservationID == reservationID {
			si.entries = append(si.entries[:k], si.entries[k+1:]...)
			break
		}
	}
	delete(si.ids, reservationID)
}

// Rebuild はストアのスナップショットからスポットの区間集合を再構築する
// 確定済み以外の予約は無視する
func (i *Index) Rebuild(spotID string, reservations []*reservation.Reservation) {
	si := &spotIntervals{ids: make(map[string]struct{})}
	for _, r := range reservations {
		if r.Status != reservation.StatusConfirmed {
			continue
		}
		if _, exists := si.ids[r.ID]; exists {
			continue
		}
		si.entries = append(si.entries, Entry{ReservationID: r.ID, Range: r.Range})
		si.ids[r.ID] = struct{}{}
	}
	sort.Slice(si.entries, func(a, b int) bool {
		return si.entries[a].Range.Start.Before(si.entries[b].Range.Start)
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	i.spots[spotID] = si
}

// Size はスポットに登録された区間数を返す
func (i *Index) Size(spotID string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	si, ok := i.spots[spotID]
	if !ok {
		return 0
	}
	return len(si.entries)
}
