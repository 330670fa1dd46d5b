package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-sync-service/internal/model"
	"pos-sync-service/internal/utils"
)

func TestCreateOrderWhileOffline(t *testing.T) {
	api := newTestAPI(t, false)

	w, resp := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("50000", "5000", "0", "55000"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	var order model.OfflineOrder
	decodeData(t, resp, &order)
	assert.True(t, model.IsLocal(order.ID))
	assert.False(t, order.Synced)
	assert.Equal(t, "55000", order.TotalAmount.String())

	assert.Equal(t, 1, api.engine.GetSyncStatus().PendingOrders)

	w, resp = api.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched model.OfflineOrder
	decodeData(t, resp, &fetched)
	assert.Equal(t, order.OfflineID, fetched.OfflineID)
}

func TestCreateOrderRejectsBadTotals(t *testing.T) {
	api := newTestAPI(t, true)

	w, resp := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("50000", "5000", "0", "60000"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.CodeInvalidOrder, resp.Error.Code)

	count, err := api.engine.GetPendingOrdersCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, true)

	w, resp := api.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{"items": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.CodeValidation, resp.Error.Code)

	var data struct {
		ValidationErrors map[string]string `json:"validation_errors"`
	}
	decodeData(t, resp, &data)
	assert.Equal(t, "min", data.ValidationErrors["Items"])
	assert.Equal(t, "required", data.ValidationErrors["PaymentMethod"])
}

func TestListOrdersFilters(t *testing.T) {
	api := newTestAPI(t, true)

	for i := 0; i < 2; i++ {
		w, _ := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("50000", "0", "0", "50000"))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	_, resp := api.do(t, http.MethodPost, "/api/v1/sync/force", nil)
	require.True(t, resp.Success)
	w, _ := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("10000", "0", "0", "10000"))
	require.Equal(t, http.StatusCreated, w.Code)

	var all, unsynced, synced []model.OfflineOrder

	_, resp = api.do(t, http.MethodGet, "/api/v1/orders", nil)
	decodeData(t, resp, &all)
	assert.Len(t, all, 3)

	_, resp = api.do(t, http.MethodGet, "/api/v1/orders/unsynced", nil)
	decodeData(t, resp, &unsynced)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "10000", unsynced[0].TotalAmount.String())

	_, resp = api.do(t, http.MethodGet, "/api/v1/orders?synced=true", nil)
	decodeData(t, resp, &synced)
	assert.Len(t, synced, 2)

	w, _ = api.do(t, http.MethodGet, "/api/v1/orders?synced=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnknownOrder(t *testing.T) {
	api := newTestAPI(t, true)

	w, _ := api.do(t, http.MethodGet, "/api/v1/orders/offline_1_abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	api := newTestAPI(t, false)

	_, resp := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("50000", "0", "0", "50000"))
	var order model.OfflineOrder
	decodeData(t, resp, &order)

	w, _ := api.do(t, http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, api.engine.GetSyncStatus().PendingOrders)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
