package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/BearBump/PassportDesk/internal/services/pending"
	"github.com/BearBump/PassportDesk/internal/storage/snapshot"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dispatchmocks "github.com/BearBump/PassportDesk/internal/services/dispatch/mocks"
)

const (
	unitA = "a1b2c3d4-e5f6-47a8-89b0-123456789abc"
	unitB = "0f8fad5b-d9cb-469f-a165-70867728950e"
	unitC = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

type recorder struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (r *recorder) OnEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, e.Kind)
}

func (r *recorder) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Kind(nil), r.kinds...)
}

type ReconcilerSuite struct {
	suite.Suite

	store  *snapshot.Memory
	queue  *pending.Queue
	client *dispatchmocks.MockBulkClient
	rec    *recorder
	r      *Reconciler
}

func (s *ReconcilerSuite) SetupTest() {
	s.store = snapshot.NewMemory()
	s.rec = &recorder{}
	bus := events.NewBus(s.rec)
	s.queue = pending.New(s.store, bus, nil)
	s.client = &dispatchmocks.MockBulkClient{}
	s.r = New(s.queue, s.client, bus, nil)
}

func (s *ReconcilerSuite) enqueue(ids ...string) {
	for _, id := range ids {
		_, err := s.queue.Enqueue(context.Background(), id)
		s.Require().NoError(err)
	}
}

func (s *ReconcilerSuite) shipForm() {
	s.r.Form().Set("carrier", "DHL")
	s.r.Form().Set("tracking_number", "JD0001")
}

func (s *ReconcilerSuite) TestMissingRequiredMetadata_NoNetworkCall() {
	s.enqueue(unitA)
	s.r.Form().Set("carrier", "   ")

	_, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrValidation)
	s.Require().Contains(err.Error(), "carrier")
	s.client.AssertNotCalled(s.T(), "BulkTransition", mock.Anything, mock.Anything)
	s.Require().Equal([]string{unitA}, s.queue.IDs())
	s.Require().Contains(s.rec.Kinds(), events.KindValidation)
	s.Require().Equal(events.KindRefocus, s.rec.Kinds()[len(s.rec.Kinds())-1])
}

func (s *ReconcilerSuite) TestUnknownStatusAndEmptyQueue() {
	_, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrEmptyQueue)

	s.enqueue(unitA)
	_, err = s.r.Submit(context.Background(), models.Status("LOST"))
	s.Require().ErrorIs(err, ErrValidation)
	s.client.AssertNotCalled(s.T(), "BulkTransition", mock.Anything, mock.Anything)
}

func (s *ReconcilerSuite) TestAllSucceeded_ClearsQueueAndForm() {
	s.enqueue(unitA, unitB)
	s.shipForm()

	want := models.DispatchBatch{
		UnitIDs:      []string{unitB, unitA},
		TargetStatus: models.StatusShipped,
		Metadata:     map[string]string{"carrier": "DHL", "tracking_number": "JD0001"},
	}
	s.client.On("BulkTransition", mock.Anything, want).
		Return(models.BulkResult{SuccessCount: 2}, nil).
		Once()

	out, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().NoError(err)
	s.Require().Equal(Outcome{Submitted: 2, Succeeded: 2}, out)
	s.Require().Zero(s.queue.Len())
	s.Require().Empty(s.r.Form().Values())
	_, ok, _ := s.store.Load(context.Background())
	s.Require().False(ok)
	s.Require().Contains(s.rec.Kinds(), events.KindDispatched)
	s.client.AssertExpectations(s.T())
}

func (s *ReconcilerSuite) TestNetworkFailure_QueueUntouched() {
	s.enqueue(unitA, unitB)
	s.shipForm()
	before := s.queue.Items()
	savesBefore := s.store.Saves()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Return(models.BulkResult{}, errors.New("connection refused")).
		Once()

	_, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrNetworkFailure)
	s.Require().Equal(before, s.queue.Items())
	s.Require().Equal(savesBefore, s.store.Saves())
	s.Require().Equal("DHL", s.r.Form().Values()["carrier"])
	s.Require().Contains(s.rec.Kinds(), events.KindDispatchFailed)
	s.Require().False(s.r.InFlight())
}

func (s *ReconcilerSuite) TestPartialFailure_KeepsOnlyFailed() {
	s.enqueue(unitA, unitB)
	s.shipForm()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Return(models.BulkResult{
			SuccessCount: 1,
			FailedCount:  1,
			Results: []models.UnitResult{
				{PassportID: unitA, Success: true},
				{PassportID: unitB, Success: false, Error: "Illegal transition CREATED -> RECYCLED"},
			},
		}, nil).
		Once()

	out, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrPartialFailure)
	s.Require().Equal(2, out.Submitted)
	s.Require().Equal(1, out.Succeeded)
	s.Require().Equal(1, out.Failed)

	items := s.queue.Items()
	s.Require().Len(items, 1)
	s.Require().Equal(unitB, items[0].ID)
	s.Require().True(items[0].Failed)
	s.Require().Equal("Illegal transition CREATED -> RECYCLED", items[0].Error)
	s.Require().Equal("DHL", s.r.Form().Values()["carrier"])
	s.Require().Contains(s.rec.Kinds(), events.KindPartialFailure)
}

func (s *ReconcilerSuite) TestPartialFailure_ThreeUnits_BlankErrorGetsGeneric() {
	s.enqueue(unitA, unitB, unitC)
	s.shipForm()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Return(models.BulkResult{
			SuccessCount: 1,
			FailedCount:  2,
			Results: []models.UnitResult{
				{PassportID: unitA, Success: true},
				{PassportID: unitB, Success: false, Error: "Passport not found"},
				{PassportID: unitC, Success: false},
			},
		}, nil).
		Once()

	out, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrPartialFailure)
	s.Require().Len(out.FailedItems, 2)

	got := map[string]string{}
	for _, it := range s.queue.Items() {
		s.Require().True(it.Failed)
		got[it.ID] = it.Error
	}
	s.Require().Equal(map[string]string{
		unitB: "Passport not found",
		unitC: GenericFailureMessage,
	}, got)
}

func (s *ReconcilerSuite) TestFailedCountWithoutResults_AllFailed() {
	s.enqueue(unitA, unitB)
	s.shipForm()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Return(models.BulkResult{SuccessCount: 1, FailedCount: 1}, nil).
		Once()

	out, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrPartialFailure)
	s.Require().Equal(2, out.Failed)
	for _, it := range s.queue.Items() {
		s.Require().Equal(MissingResultMessage, it.Error)
	}
}

func (s *ReconcilerSuite) TestEmptyResponse_NothingConfirmed() {
	s.enqueue(unitA, unitB)
	s.shipForm()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Return(models.BulkResult{}, nil).
		Once()

	out, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().ErrorIs(err, ErrPartialFailure)
	s.Require().Equal(2, out.Failed)
	s.Require().Zero(out.Succeeded)
	s.Require().Equal(2, s.queue.Len())
	for _, it := range s.queue.Items() {
		s.Require().True(it.Failed)
		s.Require().Equal(MissingResultMessage, it.Error)
	}
	_, ok, _ := s.store.Load(context.Background())
	s.Require().True(ok)
	s.Require().Equal("DHL", s.r.Form().Values()["carrier"])
}

func (s *ReconcilerSuite) TestScannedDuringDispatch_Kept() {
	s.enqueue(unitA)
	s.shipForm()

	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, err := s.queue.Enqueue(context.Background(), unitC)
			s.Require().NoError(err)
		}).
		Return(models.BulkResult{SuccessCount: 1}, nil).
		Once()

	_, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().NoError(err)
	s.Require().Equal([]string{unitC}, s.queue.IDs())
	s.Require().False(s.queue.Items()[0].Failed)
}

func (s *ReconcilerSuite) TestInFlight_RejectsSecondSubmit() {
	s.enqueue(unitA)
	s.shipForm()

	var second error
	s.client.On("BulkTransition", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			s.Require().True(s.r.InFlight())
			_, second = s.r.Submit(context.Background(), models.StatusShipped)
		}).
		Return(models.BulkResult{SuccessCount: 1}, nil).
		Once()

	_, err := s.r.Submit(context.Background(), models.StatusShipped)
	s.Require().NoError(err)
	s.Require().ErrorIs(second, ErrDispatchInFlight)
	s.client.AssertNumberOfCalls(s.T(), "BulkTransition", 1)
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func TestFoldResults(t *testing.T) {
	ids := []string{unitA, unitB}

	require.Empty(t, foldResults(ids, models.BulkResult{SuccessCount: 2}))

	allMissing := map[string]string{unitA: MissingResultMessage, unitB: MissingResultMessage}
	require.Equal(t, allMissing, foldResults(ids, models.BulkResult{}))
	require.Equal(t, allMissing, foldResults(ids, models.BulkResult{SuccessCount: 1}))
	require.Equal(t, allMissing, foldResults(ids, models.BulkResult{SuccessCount: 3}))

	got := foldResults(ids, models.BulkResult{
		FailedCount: 1,
		Results: []models.UnitResult{
			{PassportID: "A1B2C3D4-E5F6-47A8-89B0-123456789ABC", Success: true},
		},
	})
	require.Equal(t, map[string]string{unitB: MissingResultMessage}, got)
}

func TestForm(t *testing.T) {
	f := NewForm()
	f.SetAll(map[string]string{"carrier": "DHL", "": "x", "tracking_number": " "})
	require.Equal(t, map[string]string{"carrier": "DHL"}, f.Values())

	f.Set("carrier", "")
	require.Empty(t, f.Values())
}
