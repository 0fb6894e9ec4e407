package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func TestHandler_ServeHTTP(t *testing.T) {
	const payload = `{"id":"evt_1","type":"checkout.session.completed"}`

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "applied",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"received":true}}`,
		},
		{
			name:           "bad signature",
			err:            fmt.Errorf("%w: signature mismatch", errs.ErrInvalidInput),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid webhook","code":"INVALID_BODY"}`,
		},
		{
			name:           "database unavailable",
			err:            errors.New("connection reset"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error","code":"INTERNAL"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("HandleWebhook", mock.Anything, []byte(payload), "t=1,v1=abc").Return(tt.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(payload))
			req.Header.Set(SignatureHeader, "t=1,v1=abc")
			w := httptest.NewRecorder()

			New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
