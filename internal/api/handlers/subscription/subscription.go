// Package subscription реализует HTTP-обработчики каталога планов, подписки
// текущего пользователя, оплаты через Stripe и администрирования подписок.
package subscription

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/api/request"
	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// CheckoutRequest выбор плана для оплаты.
type CheckoutRequest struct {
	Plan         string `json:"plan" validate:"required"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
}

// CheckoutResponse сессия оплаты Stripe.
type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

var statuses = []string{
	models.SubscriptionStatusTrial,
	models.SubscriptionStatusActive,
	models.SubscriptionStatusExpired,
	models.SubscriptionStatusCancelled,
}

// Service описывает бизнес-логику подписок.
type Service interface {
	Catalog() []plans.Plan
	Me(ctx context.Context, id models.Identity) (*models.SubscriptionView, error)
	Checkout(ctx context.Context, id models.Identity, plan, cycle string) (*paymentprovider.Session, error)
	Cancel(ctx context.Context, id models.Identity) (*models.Subscription, error)
	List(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error)
	Create(ctx context.Context, in models.SubscriptionInput) (*models.Subscription, error)
	Update(ctx context.Context, id string, in models.SubscriptionInput) (*models.Subscription, error)
	Delete(ctx context.Context, id string) error
}

// Handler обрабатывает запросы подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Plans godoc
// @Summary Каталог планов
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} response.OKResponse{data=[]plans.Plan}
// @Router /plans [get]
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, h.service.Catalog())
}

// Me godoc
// @Summary Подписка текущего пользователя
// @Description Для администратора школы возвращается подписка школы.
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=models.SubscriptionView}
// @Failure 404 {object} response.ErrorResponse "Подписки нет"
// @Router /subscriptions/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Me")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	view, err := h.service.Me(r.Context(), id)
	if err != nil {
		log.Error("failed to get subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, view)
}

// Checkout godoc
// @Summary Оплата плана
// @Description Создаёт сессию Stripe Checkout для подписки пользователя или школы.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckoutRequest true "План и период"
// @Success 201 {object} response.OKResponse{data=CheckoutResponse}
// @Failure 400 {object} response.ErrorResponse "Неизвестный план"
// @Failure 403 {object} response.ErrorResponse "План недоступен для роли"
// @Router /subscriptions/checkout [post]
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Checkout")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !request.Decode(w, r, log, &req) {
		return
	}

	session, err := h.service.Checkout(r.Context(), id, req.Plan, req.BillingCycle)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("checkout session created", slog.String("session_id", session.ID), slog.String("plan", req.Plan))
	response.Created(w, r, CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL})
}

// Cancel godoc
// @Summary Отменить подписку
// @Description Подписка переходит в cancelled, автопродление выключается.
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=models.Subscription}
// @Failure 404 {object} response.ErrorResponse "Подписки нет"
// @Router /subscriptions/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Cancel")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	sub, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		log.Error("failed to cancel subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription cancelled", slog.String("subscription_id", sub.ID))
	response.OK(w, r, sub)
}

// List godoc
// @Summary Подписки (администратор)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Статус" Enums(trial, active, expired, cancelled)
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.OKResponse{data=[]models.Subscription}
// @Router /admin/subscriptions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.List")

	status := r.URL.Query().Get("status")
	if status != "" && !slices.Contains(statuses, status) {
		log.Error("invalid status filter", slog.String("status", status))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid status"))
		return
	}
	limit, offset, ok := request.Page(w, r, log)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), models.SubscriptionFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, list)
}

// Create godoc
// @Summary Создать подписку (администратор)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SubscriptionInput true "Подписка"
// @Success 201 {object} response.OKResponse{data=models.Subscription}
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/subscriptions [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Create")

	var req models.SubscriptionInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	sub, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription created", slog.String("subscription_id", sub.ID))
	response.Created(w, r, sub)
}

// Update godoc
// @Summary Изменить подписку (администратор)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID подписки"
// @Param request body models.SubscriptionInput true "Подписка"
// @Success 200 {object} response.OKResponse{data=models.Subscription}
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Update")

	var req models.SubscriptionInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	sub, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update subscription", slog.String("subscription_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription updated", slog.String("subscription_id", sub.ID))
	response.OK(w, r, sub)
}

// Delete godoc
// @Summary Удалить подписку (администратор)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID подписки"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.subscription.Delete")

	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete subscription", slog.String("subscription_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription deleted", slog.String("subscription_id", id))
	response.OK(w, r, map[string]string{"deleted": id})
}
