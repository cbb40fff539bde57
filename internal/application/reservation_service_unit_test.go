package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kangxxie/go-parking-reservation/internal/availability"
	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
	"github.com/kangxxie/go-parking-reservation/internal/lock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/clock"
)

// === Mock implementations ===

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Insert(ctx context.Context, r *reservation.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListBySpot(ctx context.Context, spotID string, status reservation.Status) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, spotID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, id string, next, expected reservation.Status, now time.Time) error {
	args := m.Called(ctx, id, next, expected, now)
	return args.Error(0)
}

func (m *MockReservationRepository) Reschedule(ctx context.Context, r *reservation.Reservation, expected reservation.Status) error {
	args := m.Called(ctx, r, expected)
	return args.Error(0)
}

func (m *MockReservationRepository) ListConfirmed(ctx context.Context) ([]*reservation.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSpotDirectory implements spot.Directory
type MockSpotDirectory struct {
	mock.Mock
}

func (m *MockSpotDirectory) GetByID(ctx context.Context, id string) (*spot.ParkingSpot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*spot.ParkingSpot), args.Error(1)
}

func (m *MockSpotDirectory) ListActiveByCity(ctx context.Context, cityID string, vt spot.VehicleType) ([]*spot.ParkingSpot, error) {
	args := m.Called(ctx, cityID, vt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*spot.ParkingSpot), args.Error(1)
}

// === Helpers ===

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo reservation.Repository, dir spot.Directory) *ReservationService {
	return NewReservationService(
		repo, dir,
		availability.NewIndex(),
		lock.NewSpotGuard(time.Second),
		nil,
		clock.NewFake(testNow),
		Policy{MaxDuration: 14 * 24 * time.Hour, AdvanceWindow: 90 * 24 * time.Hour},
		nil,
	)
}

func testCarSpot() *spot.ParkingSpot {
	return &spot.ParkingSpot{
		ID: "milan-p1", CityID: "milan", Label: "P1",
		VehicleType: spot.VehicleTypeCar, HourlyRateCents: 200, Active: true,
	}
}

func createInput(startOffset, endOffset time.Duration) CreateReservationInput {
	return CreateReservationInput{
		SpotID:      "milan-p1",
		UserID:      "user-123",
		VehicleType: "car",
		StartTime:   testNow.Add(startOffset),
		EndTime:     testNow.Add(endOffset),
	}
}

// === CreateReservation ===

func TestCreateReservation_入力検証(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateReservationInput
		wantErr error
	}{
		{name: "開始と終了が同時刻", input: createInput(time.Hour, time.Hour), wantErr: reservation.ErrInvalidRange},
		{name: "終了が開始より前", input: createInput(2*time.Hour, time.Hour), wantErr: reservation.ErrInvalidRange},
		{name: "過去の開始時刻", input: createInput(-time.Hour, time.Hour), wantErr: reservation.ErrPastStart},
		{name: "最大時間超過", input: createInput(time.Hour, 15*24*time.Hour), wantErr: reservation.ErrDurationTooLong},
		{name: "受付期間より先の開始", input: createInput(91*24*time.Hour, 91*24*time.Hour+time.Hour), wantErr: reservation.ErrTooFarInAdvance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockReservationRepository)
			dir := new(MockSpotDirectory)
			svc := newTestService(repo, dir)

			_, err := svc.CreateReservation(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateReservation_不正な車種(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	svc := newTestService(repo, dir)

	input := createInput(time.Hour, 2*time.Hour)
	input.VehicleType = "truck"
	_, err := svc.CreateReservation(context.Background(), input)

	assert.ErrorIs(t, err, spot.ErrInvalidVehicleType)
}

func TestCreateReservation_スポット未登録(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(nil, spot.ErrSpotNotFound)
	svc := newTestService(repo, dir)

	_, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 2*time.Hour))

	assert.ErrorIs(t, err, spot.ErrSpotNotFound)
}

func TestCreateReservation_稼働停止スポット(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	sp := testCarSpot()
	sp.Active = false
	dir.On("GetByID", mock.Anything, "milan-p1").Return(sp, nil)
	svc := newTestService(repo, dir)

	_, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 2*time.Hour))

	assert.ErrorIs(t, err, spot.ErrSpotNotFound)
}

func TestCreateReservation_車種不一致(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	svc := newTestService(repo, dir)

	input := createInput(time.Hour, 2*time.Hour)
	input.VehicleType = "bus"
	_, err := svc.CreateReservation(context.Background(), input)

	assert.ErrorIs(t, err, spot.ErrVehicleTypeMismatch)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreateReservation_成功(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*reservation.Reservation")).Return(nil)
	svc := newTestService(repo, dir)

	res, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 3*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, res.Status)
	assert.Equal(t, "milan-p1", res.SpotID)
	assert.Equal(t, int64(400), res.PriceCents)
	repo.AssertExpectations(t)
}

func TestCreateReservation_ストア挿入失敗時はインデックスに残らない(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(assert.AnError)
	svc := newTestService(repo, dir)

	_, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 2*time.Hour))
	require.Error(t, err)

	// 失敗後は同じ時間帯を再予約できる
	repo.ExpectedCalls = nil
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	res, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, res.Status)
}

// === CancelReservation ===

func confirmedReservation(id, spotID, userID string) *reservation.Reservation {
	return &reservation.Reservation{
		ID: id, SpotID: spotID, UserID: userID,
		Range:     reservation.NewTimeRange(testNow.Add(time.Hour), testNow.Add(2*time.Hour)),
		Status:    reservation.StatusConfirmed,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
}

func TestCancelReservation_成功(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	res := confirmedReservation("res-1", "milan-p1", "user-123")
	repo.On("GetByID", mock.Anything, "res-1").Return(res, nil)
	repo.On("UpdateStatus", mock.Anything, "res-1", reservation.StatusCancelled, reservation.StatusConfirmed, testNow).Return(nil)
	svc := newTestService(repo, dir)

	got, err := svc.CancelReservation(context.Background(), "res-1", "user-123")

	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, got.Status)
	repo.AssertExpectations(t)
}

func TestCancelReservation_本人以外は拒否(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	repo.On("GetByID", mock.Anything, "res-1").Return(confirmedReservation("res-1", "milan-p1", "user-123"), nil)
	svc := newTestService(repo, dir)

	_, err := svc.CancelReservation(context.Background(), "res-1", "user-999")

	assert.ErrorIs(t, err, reservation.ErrNotOwner)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelReservation_存在しない予約(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	repo.On("GetByID", mock.Anything, "res-missing").Return(nil, reservation.ErrNotFound)
	svc := newTestService(repo, dir)

	_, err := svc.CancelReservation(context.Background(), "res-missing", "user-123")

	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestCancelReservation_キャンセル済みは冪等エラー(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	res := confirmedReservation("res-1", "milan-p1", "user-123")
	res.Status = reservation.StatusCancelled
	repo.On("GetByID", mock.Anything, "res-1").Return(res, nil)
	svc := newTestService(repo, dir)

	_, err := svc.CancelReservation(context.Background(), "res-1", "user-123")

	assert.ErrorIs(t, err, reservation.ErrAlreadyCancelled)
}

func TestCancelReservation_状態競合でインデックスを再構築(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	res := confirmedReservation("res-1", "milan-p1", "user-123")
	repo.On("GetByID", mock.Anything, "res-1").Return(res, nil)
	repo.On("UpdateStatus", mock.Anything, "res-1", reservation.StatusCancelled, reservation.StatusConfirmed, testNow).
		Return(reservation.ErrStatusConflict)
	// 競合検出後、ストアを正としてスポットの確定予約を読み直す
	repo.On("ListBySpot", mock.Anything, "milan-p1", reservation.StatusConfirmed).
		Return([]*reservation.Reservation{}, nil)
	svc := newTestService(repo, dir)

	_, err := svc.CancelReservation(context.Background(), "res-1", "user-123")

	assert.ErrorIs(t, err, reservation.ErrStatusConflict)
	repo.AssertExpectations(t)
}

// === UpdateReservation ===

func TestUpdateReservation_移動先の車種不一致(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	res := confirmedReservation("res-1", "milan-p1", "user-123")
	repo.On("GetByID", mock.Anything, "res-1").Return(res, nil)
	busSpot := &spot.ParkingSpot{
		ID: "milan-b1", CityID: "milan", VehicleType: spot.VehicleTypeBus,
		HourlyRateCents: 800, Active: true,
	}
	dir.On("GetByID", mock.Anything, "milan-b1").Return(busSpot, nil)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	svc := newTestService(repo, dir)

	_, err := svc.UpdateReservation(context.Background(), UpdateReservationInput{
		ReservationID: "res-1", UserID: "user-123", NewSpotID: "milan-b1",
		StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(2 * time.Hour),
	})

	assert.ErrorIs(t, err, spot.ErrVehicleTypeMismatch)
	repo.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateReservation_同一スポットで時間帯変更(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	res := confirmedReservation("res-1", "milan-p1", "user-123")
	repo.On("GetByID", mock.Anything, "res-1").Return(res, nil)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	repo.On("Reschedule", mock.Anything, mock.AnythingOfType("*reservation.Reservation"), reservation.StatusConfirmed).Return(nil)
	svc := newTestService(repo, dir)

	got, err := svc.UpdateReservation(context.Background(), UpdateReservationInput{
		ReservationID: "res-1", UserID: "user-123",
		StartTime: testNow.Add(3 * time.Hour), EndTime: testNow.Add(5 * time.Hour),
	})

	require.NoError(t, err)
	assert.Equal(t, "milan-p1", got.SpotID)
	assert.Equal(t, int64(400), got.PriceCents)
	assert.True(t, got.Range.Start.Equal(testNow.Add(3*time.Hour)))
	repo.AssertExpectations(t)
}

func TestUpdateReservation_本人以外は拒否(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	repo.On("GetByID", mock.Anything, "res-1").Return(confirmedReservation("res-1", "milan-p1", "user-123"), nil)
	svc := newTestService(repo, dir)

	_, err := svc.UpdateReservation(context.Background(), UpdateReservationInput{
		ReservationID: "res-1", UserID: "user-999",
		StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(2 * time.Hour),
	})

	assert.ErrorIs(t, err, reservation.ErrNotOwner)
}

// === ListUserReservations ===

func TestListUserReservations_デフォルト件数(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	repo.On("ListByUser", mock.Anything, "user-123", 20, 0).Return([]*reservation.Reservation{}, nil)
	svc := newTestService(repo, dir)

	_, err := svc.ListUserReservations(context.Background(), "user-123", 0, 0)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

// === CheckAvailability ===

func TestCheckAvailability(t *testing.T) {
	repo := new(MockReservationRepository)
	dir := new(MockSpotDirectory)
	dir.On("GetByID", mock.Anything, "milan-p1").Return(testCarSpot(), nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	svc := newTestService(repo, dir)

	_, err := svc.CreateReservation(context.Background(), createInput(time.Hour, 3*time.Hour))
	require.NoError(t, err)

	t.Run("重なる時間帯は埋まっている", func(t *testing.T) {
		free, conflicts, err := svc.CheckAvailability(context.Background(), "milan-p1", testNow.Add(2*time.Hour), testNow.Add(4*time.Hour))
		require.NoError(t, err)
		assert.False(t, free)
		assert.Len(t, conflicts, 1)
	})

	t.Run("境界が接するだけの時間帯は空いている", func(t *testing.T) {
		free, conflicts, err := svc.CheckAvailability(context.Background(), "milan-p1", testNow.Add(3*time.Hour), testNow.Add(4*time.Hour))
		require.NoError(t, err)
		assert.True(t, free)
		assert.Empty(t, conflicts)
	})

	t.Run("不正な区間", func(t *testing.T) {
		_, _, err := svc.CheckAvailability(context.Background(), "milan-p1", testNow.Add(2*time.Hour), testNow.Add(2*time.Hour))
		assert.ErrorIs(t, err, reservation.ErrInvalidRange)
	})
}
