package outsourcing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/challan"
	"github.com/loomline/erp-backend/pkg/db"
	"github.com/loomline/erp-backend/pkg/db/dbtest"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/outbox"
)

type fakeIssuer struct {
	mu      sync.Mutex
	outward int
	inward  int
	err     error
	block   bool
}

func (f *fakeIssuer) IssueOutwardDocument(ctx context.Context, req challan.DocumentRequest) (*challan.Document, error) {
	f.mu.Lock()
	f.outward++
	n := f.outward
	f.mu.Unlock()
	return f.respond(ctx, challan.DirectionOutward, "OUT-", n)
}

func (f *fakeIssuer) IssueInwardDocument(ctx context.Context, req challan.DocumentRequest) (*challan.Document, error) {
	f.mu.Lock()
	f.inward++
	n := f.inward
	f.mu.Unlock()
	return f.respond(ctx, challan.DirectionInward, "IN-", n)
}

func (f *fakeIssuer) respond(ctx context.Context, dir challan.Direction, prefix string, n int) (*challan.Document, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &challan.Document{Reference: prefix + string(rune('0'+n)), Direction: dir, IssuedAt: time.Now().UTC()}, nil
}

type harness struct {
	client *db.Client
	svc    Service
	issuer *fakeIssuer
	events *outbox.Repository
}

func newHarness(t *testing.T, timeout time.Duration) harness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	events := outbox.NewRepository(client.DB())
	publisher := outbox.NewService(events, logg)
	repo := stages.NewRepository(client.DB())

	stageSvc, err := stages.NewService(repo, client, publisher, nil, logg)
	require.NoError(t, err)

	issuer := &fakeIssuer{}
	svc, err := NewService(ServiceParams{
		Stages:         stageSvc,
		Repo:           repo,
		Tx:             client,
		Outbox:         publisher,
		Documents:      issuer,
		Logger:         logg,
		HandoffTimeout: timeout,
	})
	require.NoError(t, err)
	return harness{client: client, svc: svc, issuer: issuer, events: events}
}

func (h harness) outsourcedStage(t *testing.T) models.ProductionStage {
	t.Helper()
	_, seeded := dbtest.SeedOrder(t, h.client, enums.StageEmbroidery)
	vendor := "Sharma Embroidery Works"
	stage, err := h.svc.SetOutsourced(context.Background(), SetOutsourcedInput{StageID: seeded[0].ID, Outsourced: true, VendorRef: &vendor})
	require.NoError(t, err)
	return *stage
}

func (h harness) load(t *testing.T, id uuid.UUID) models.ProductionStage {
	t.Helper()
	var stage models.ProductionStage
	require.NoError(t, h.client.DB().Where("id = ?", id).First(&stage).Error)
	return stage
}

func TestOutsourcedRoundTrip(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	stage := h.outsourcedStage(t)

	dispatched, err := h.svc.DispatchToVendor(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StageStatusOutsourcedPending, dispatched.Status)
	require.NotNil(t, dispatched.OutwardDocumentRef)
	assert.Equal(t, "OUT-1", *dispatched.OutwardDocumentRef)
	assert.NotNil(t, dispatched.DispatchedAt)
	assert.Nil(t, dispatched.ActualStartTime)

	_, err = h.svc.Complete(ctx, stage.ID, stages.CompleteInput{Processed: 10, Approved: 10})
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	received, err := h.svc.ReceiveFromVendor(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StageStatusOutsourcedInProgress, received.Status)
	assert.Equal(t, "IN-1", *received.InwardDocumentRef)
	assert.NotNil(t, received.ReceivedAt)
	assert.NotNil(t, received.ActualStartTime)

	result, err := h.svc.Complete(ctx, stage.ID, stages.CompleteInput{Processed: 100, Approved: 98, Rejected: 2})
	require.NoError(t, err)
	assert.Equal(t, enums.StageStatusCompleted, result.Stage.Status)

	rows, err := h.events.ListForAggregate(nil, enums.AggregateProductionStage, stage.ID)
	require.NoError(t, err)
	var types []enums.OutboxEventType
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	assert.Contains(t, types, enums.EventStageDispatched)
	assert.Contains(t, types, enums.EventStageReceived)
	assert.Contains(t, types, enums.EventStageCompleted)
}

func TestDispatchIsNotRepeated(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	stage := h.outsourcedStage(t)

	_, err := h.svc.DispatchToVendor(ctx, stage.ID)
	require.NoError(t, err)

	_, err = h.svc.DispatchToVendor(ctx, stage.ID)
	assert.Equal(t, pkgerrors.CodeAlreadyDispatched, pkgerrors.CodeOf(err))

	_, err = h.svc.ReceiveFromVendor(ctx, stage.ID)
	require.NoError(t, err)
	_, err = h.svc.DispatchToVendor(ctx, stage.ID)
	assert.Equal(t, pkgerrors.CodeAlreadyDispatched, pkgerrors.CodeOf(err))

	assert.Equal(t, 1, h.issuer.outward)
	assert.Equal(t, "OUT-1", *h.load(t, stage.ID).OutwardDocumentRef)
}

func TestConcurrentDispatchIssuesOneDocument(t *testing.T) {
	h := newHarness(t, time.Second)
	stage := h.outsourcedStage(t)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.DispatchToVendor(context.Background(), stage.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, pkgerrors.CodeAlreadyDispatched, pkgerrors.CodeOf(err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, h.issuer.outward)
}

func TestDispatchFailureLeavesStagePending(t *testing.T) {
	h := newHarness(t, time.Second)
	stage := h.outsourcedStage(t)
	h.issuer.err = errors.New("challan service returned 500")

	_, err := h.svc.DispatchToVendor(context.Background(), stage.ID)
	assert.Equal(t, pkgerrors.CodeExternalHandoff, pkgerrors.CodeOf(err))

	stored := h.load(t, stage.ID)
	assert.Equal(t, enums.StageStatusPending, stored.Status)
	assert.Nil(t, stored.OutwardDocumentRef)
	assert.Nil(t, stored.DispatchedAt)

	rows, err := h.events.ListForAggregate(nil, enums.AggregateProductionStage, stage.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	h.issuer.err = nil
	retried, err := h.svc.DispatchToVendor(context.Background(), stage.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StageStatusOutsourcedPending, retried.Status)
}

func TestDispatchTimeoutRollsBack(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	stage := h.outsourcedStage(t)
	h.issuer.block = true

	_, err := h.svc.DispatchToVendor(context.Background(), stage.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeExternalHandoff, pkgerrors.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, enums.StageStatusPending, h.load(t, stage.ID).Status)
}

func TestReceiveFailureLeavesStageWithVendor(t *testing.T) {
	h := newHarness(t, time.Second)
	stage := h.outsourcedStage(t)

	_, err := h.svc.DispatchToVendor(context.Background(), stage.ID)
	require.NoError(t, err)

	h.issuer.err = errors.New("timeout")
	_, err = h.svc.ReceiveFromVendor(context.Background(), stage.ID)
	assert.Equal(t, pkgerrors.CodeExternalHandoff, pkgerrors.CodeOf(err))

	stored := h.load(t, stage.ID)
	assert.Equal(t, enums.StageStatusOutsourcedPending, stored.Status)
	assert.Nil(t, stored.InwardDocumentRef)
}

func TestDispatchRequiresOutsourcedPendingStage(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	_, seeded := dbtest.SeedOrder(t, h.client, enums.StagePrinting, enums.StageFinishing)

	_, err := h.svc.DispatchToVendor(ctx, seeded[0].ID)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	_, err = h.svc.ReceiveFromVendor(ctx, seeded[0].ID)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	require.NoError(t, h.client.DB().Model(&models.ProductionStage{}).
		Where("id = ?", seeded[1].ID).Update("status", enums.StageStatusSkipped).Error)
	_, err = h.svc.DispatchToVendor(ctx, seeded[1].ID)
	assert.Equal(t, pkgerrors.CodeStageTerminal, pkgerrors.CodeOf(err))

	assert.Zero(t, h.issuer.outward)
	assert.Zero(t, h.issuer.inward)
}

func TestSetOutsourcedOnlyWhilePending(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	stage := h.outsourcedStage(t)
	assert.True(t, stage.Outsourced)
	require.NotNil(t, stage.VendorRef)

	cleared, err := h.svc.SetOutsourced(ctx, SetOutsourcedInput{StageID: stage.ID, Outsourced: false})
	require.NoError(t, err)
	assert.False(t, cleared.Outsourced)
	assert.Nil(t, cleared.VendorRef)

	_, err = h.svc.SetOutsourced(ctx, SetOutsourcedInput{StageID: stage.ID, Outsourced: true})
	require.NoError(t, err)
	_, err = h.svc.DispatchToVendor(ctx, stage.ID)
	require.NoError(t, err)

	_, err = h.svc.SetOutsourced(ctx, SetOutsourcedInput{StageID: stage.ID, Outsourced: false})
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	_, err = h.svc.SetOutsourced(ctx, SetOutsourcedInput{StageID: uuid.New(), Outsourced: true})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
