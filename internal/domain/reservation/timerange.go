package reservation

import "time"

// TimeRange は予約が占有する半開区間 [Start, End) を表す
// 終了時刻と次の予約の開始時刻が一致しても重なりとは見なさない
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange は時刻をUTCに正規化して TimeRange を作成する
func NewTimeRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start.UTC(), End: end.UTC()}
}

// Validate は時間帯の検証を行う
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Overlaps は半開区間同士の重なりを判定する
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains は指定時刻が区間内かを返す
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration は区間の長さを返す
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
