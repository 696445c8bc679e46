package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sales_agent_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

func TestHandleErrorMapsWrappedKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.Conflict("slot busy").WithDetails(map[string]string{"state": "classified"}), http.StatusConflict, "conflict"},
		{fmt.Errorf("resolve: %w", apperr.Unavailable("crm down")), http.StatusServiceUnavailable, "unavailable"},
		{apperr.Validation("unknown country"), http.StatusBadRequest, "validation"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatal("expected error to be handled")
		}
		if rec.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body ErrorResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Kind != tc.kind {
			t.Errorf("%v: expected kind %q, got %q", tc.err, tc.kind, body.Kind)
		}
	}
}

func TestHandleErrorNil(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	if HandleError(c, nil) {
		t.Fatal("nil error must not be handled")
	}
}
