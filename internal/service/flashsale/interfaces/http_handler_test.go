package interfaces

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/service/flashsale/domain"
)

func TestCustomerFromHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/flash-sales/1/purchase", nil)
	r.Header.Set(headerCustomerID, "42")
	r.Header.Set(headerCustomerVIP, "true")
	r.Header.Set(headerCustomerRegion, "east")
	r.Header.Set(headerCustomerOrderCount, "9")

	id, profile, ok := customerFrom(r)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.True(t, profile.IsVIP)
	assert.Equal(t, "east", profile.Region)
	assert.Equal(t, int64(9), profile.OrderCount)
}

func TestCustomerFromRejectsBadHeader(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-5"} {
		r := httptest.NewRequest("GET", "/api/v1/flash-sales/my-orders", nil)
		if raw != "" {
			r.Header.Set(headerCustomerID, raw)
		}
		_, _, ok := customerFrom(r)
		assert.False(t, ok, "header %q", raw)
	}
}

func TestWriteErrorMapsBusinessRejections(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/flash-sales/1/purchase", nil)

	// 业务拒绝是正常结果：HTTP 200 + 结构化错误码
	w := httptest.NewRecorder()
	writeError(w, r, domain.ErrOutOfStock(1.5))
	assert.Equal(t, 200, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeOutOfStock, resp.Error.Code)
	assert.InDelta(t, 1.5, resp.Error.Available, 1e-9)
}

func TestWriteErrorMapsInfrastructureFaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/flash-sales/1", nil)

	w := httptest.NewRecorder()
	writeError(w, r, domain.ErrSaleNotFound)
	assert.Equal(t, 404, w.Code)

	w = httptest.NewRecorder()
	writeError(w, r, domain.ErrOrderState)
	assert.Equal(t, 409, w.Code)

	w = httptest.NewRecorder()
	writeError(w, r, assert.AnError)
	assert.Equal(t, 503, w.Code)
}
