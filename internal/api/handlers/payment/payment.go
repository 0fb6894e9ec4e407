// Package payment принимает вебхуки Stripe.
package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// SignatureHeader заголовок с подписью события Stripe.
const SignatureHeader = "Stripe-Signature"

// maxPayload предельный размер тела вебхука.
const maxPayload = 64 << 10

// Service проверяет и применяет событие оплаты.
type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Handler обработчик вебхука.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Description Проверяет подпись события и применяет его к подпискам. Ответ 5xx заставляет Stripe повторить доставку.
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.OKResponse
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или формат"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.Webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid request body"))
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		if errors.Is(err, errs.ErrInvalidInput) {
			log.Warn("webhook rejected", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid webhook"))
			return
		}
		log.Error("failed to process webhook", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorCode(errs.CodeInternal, "internal error"))
		return
	}

	response.OK(w, r, map[string]bool{"received": true})
}
