package productionorders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordersvc "github.com/loomline/erp-backend/internal/productionorders"
	"github.com/loomline/erp-backend/internal/progress"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

type stubOrderService struct {
	input  ordersvc.CreateOrderInput
	order  *models.ProductionOrder
	err    error
	called bool
}

func (s *stubOrderService) CreateOrder(_ context.Context, input ordersvc.CreateOrderInput) (*models.ProductionOrder, error) {
	s.called = true
	s.input = input
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, orderID uuid.UUID) (*models.ProductionOrder, error) {
	s.called = true
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

type stubProgressService struct {
	summary *progress.OrderProgress
	err     error
}

func (s *stubProgressService) GetOrderProgress(context.Context, uuid.UUID) (*progress.OrderProgress, error) {
	return s.summary, s.err
}

func newRouter(orders ordersvc.Service, prog progress.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	r := chi.NewRouter()
	r.Post("/production-orders", Create(orders, logg))
	r.Get("/production-orders/{orderId}", Get(orders, logg))
	r.Get("/production-orders/{orderId}/progress", Progress(prog, logg))
	return r
}

func sampleOrder() *models.ProductionOrder {
	orderID := uuid.New()
	return &models.ProductionOrder{
		ID:             orderID,
		OrderNumber:    "PO-1001",
		ProductRef:     "TEE-BLK-M",
		TargetQuantity: 500,
		Decoration:     enums.DecorationPrinting,
		Stages: []models.ProductionStage{
			{ID: uuid.New(), OrderID: orderID, StageName: enums.StageCutting, SequenceIndex: 0, Status: enums.StageStatusPending},
			{ID: uuid.New(), OrderID: orderID, StageName: enums.StagePrinting, SequenceIndex: 1, Status: enums.StageStatusPending},
		},
	}
}

func TestCreateReturnsOrderWithPipeline(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder()}
	payload := `{"orderNumber":" PO-1001 ","productRef":"TEE-BLK-M","targetQuantity":500,"decoration":"printing",
		"outsourcedStages":[{"stage":"printing","vendorRef":" inkworks "}]}`
	req := httptest.NewRequest(http.MethodPost, "/production-orders", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "PO-1001", svc.input.OrderNumber)
	assert.Equal(t, enums.DecorationPrinting, svc.input.Decoration)
	require.Len(t, svc.input.OutsourcedStages, 1)
	assert.Equal(t, enums.StagePrinting, svc.input.OutsourcedStages[0].Stage)
	require.NotNil(t, svc.input.OutsourcedStages[0].VendorRef)
	assert.Equal(t, "inkworks", *svc.input.OutsourcedStages[0].VendorRef)

	var body struct {
		Data struct {
			OrderNumber string `json:"orderNumber"`
			Stages      []struct {
				StageName     string `json:"stageName"`
				SequenceIndex int    `json:"sequenceIndex"`
			} `json:"stages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PO-1001", body.Data.OrderNumber)
	require.Len(t, body.Data.Stages, 2)
	assert.Equal(t, "printing", body.Data.Stages[1].StageName)
	assert.Equal(t, 1, body.Data.Stages[1].SequenceIndex)
}

func TestCreateValidatesPayload(t *testing.T) {
	cases := map[string]string{
		"missing order number": `{"productRef":"TEE","targetQuantity":1}`,
		"zero quantity":        `{"orderNumber":"PO-1","productRef":"TEE","targetQuantity":0}`,
		"unknown decoration":   `{"orderNumber":"PO-1","productRef":"TEE","targetQuantity":1,"decoration":"glitter"}`,
		"unknown stage":        `{"orderNumber":"PO-1","productRef":"TEE","targetQuantity":1,"outsourcedStages":[{"stage":"dyeing"}]}`,
		"empty body":           ``,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrderService{}
			req := httptest.NewRequest(http.MethodPost, "/production-orders", strings.NewReader(payload))
			rec := httptest.NewRecorder()

			newRouter(svc, nil).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, svc.called)
		})
	}
}

func TestCreateDuplicateOrderNumber(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeConflict, "order number PO-1 already exists")}
	req := httptest.NewRequest(http.MethodPost, "/production-orders",
		strings.NewReader(`{"orderNumber":"PO-1","productRef":"TEE","targetQuantity":1}`))
	rec := httptest.NewRecorder()

	newRouter(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetNotFound(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeNotFound, "production order not found")}
	req := httptest.NewRequest(http.MethodGet, "/production-orders/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	newRouter(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressReturnsSummary(t *testing.T) {
	orderID := uuid.New()
	current := enums.StageStitching
	prog := &stubProgressService{summary: &progress.OrderProgress{
		OrderID:          orderID,
		Percent:          40,
		CurrentStageName: &current,
		Completed:        2,
		Total:            5,
	}}
	req := httptest.NewRequest(http.MethodGet, "/production-orders/"+orderID.String()+"/progress", nil)
	rec := httptest.NewRecorder()

	newRouter(&stubOrderService{}, prog).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data progress.OrderProgress `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 40, body.Data.Percent)
	require.NotNil(t, body.Data.CurrentStageName)
	assert.Equal(t, enums.StageStitching, *body.Data.CurrentStageName)
}
