// Package renewal реализует HTTP-обработчики заявок на продление подписки
// и их рассмотрения супер-администратором.
package renewal

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
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// ReviewRequest комментарий администратора к решению.
type ReviewRequest struct {
	AdminNote string `json:"adminNote" validate:"omitempty,max=500"`
}

// ApproveResponse одобренная заявка и обновлённая подписка.
type ApproveResponse struct {
	Request      *models.SubscriptionRenewalRequest `json:"request"`
	Subscription *models.Subscription               `json:"subscription"`
}

// Service описывает бизнес-логику заявок на продление.
type Service interface {
	Request(ctx context.Context, id models.Identity, in models.RenewalRequestInput) (*models.SubscriptionRenewalRequest, error)
	List(ctx context.Context, status string) ([]*models.SubscriptionRenewalRequest, error)
	Approve(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, *models.Subscription, error)
	Reject(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, error)
}

// Handler обрабатывает запросы продления.
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

// Create godoc
// @Summary Заявка на продление
// @Tags Renewals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RenewalRequestInput true "План и период"
// @Success 201 {object} response.OKResponse{data=models.SubscriptionRenewalRequest}
// @Failure 404 {object} response.ErrorResponse "Подписки нет"
// @Failure 409 {object} response.ErrorResponse "Уже есть заявка на рассмотрении"
// @Router /subscriptions/renewal-requests [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.renewal.Create")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req models.RenewalRequestInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	rr, err := h.service.Request(r.Context(), id, req)
	if err != nil {
		log.Error("failed to create renewal request", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("renewal request created", slog.String("renewal_id", rr.ID))
	response.Created(w, r, rr)
}

// List godoc
// @Summary Заявки на продление (администратор)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Статус" Enums(pending, approved, rejected) default(pending)
// @Success 200 {object} response.OKResponse{data=[]models.SubscriptionRenewalRequest}
// @Router /admin/renewal-requests [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.renewal.List")

	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.RenewalStatusPending
	}
	known := []string{models.RenewalStatusPending, models.RenewalStatusApproved, models.RenewalStatusRejected}
	if !slices.Contains(known, status) {
		log.Error("invalid status filter", slog.String("status", status))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid status"))
		return
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		log.Error("failed to list renewal requests", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, list)
}

// Approve godoc
// @Summary Одобрить продление
// @Description Новый срок отсчитывается от max(now, end_date) по периоду заявки.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заявки"
// @Param request body ReviewRequest false "Комментарий"
// @Success 200 {object} response.OKResponse{data=ApproveResponse}
// @Failure 404 {object} response.ErrorResponse "Заявка не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже рассмотрена"
// @Router /admin/renewal-requests/{id}/approve [put]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.renewal.Approve")

	reviewer, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req ReviewRequest
	if !request.Decode(w, r, log, &req) {
		return
	}

	renewalID, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	rr, sub, err := h.service.Approve(r.Context(), renewalID, reviewer.UserID, req.AdminNote)
	if err != nil {
		log.Error("failed to approve renewal", slog.String("renewal_id", renewalID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("renewal approved", slog.String("renewal_id", rr.ID))
	response.OK(w, r, ApproveResponse{Request: rr, Subscription: sub})
}

// Reject godoc
// @Summary Отклонить продление
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заявки"
// @Param request body ReviewRequest false "Комментарий"
// @Success 200 {object} response.OKResponse{data=models.SubscriptionRenewalRequest}
// @Failure 404 {object} response.ErrorResponse "Заявка не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже рассмотрена"
// @Router /admin/renewal-requests/{id}/reject [put]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.renewal.Reject")

	reviewer, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req ReviewRequest
	if !request.Decode(w, r, log, &req) {
		return
	}

	renewalID, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	rr, err := h.service.Reject(r.Context(), renewalID, reviewer.UserID, req.AdminNote)
	if err != nil {
		log.Error("failed to reject renewal", slog.String("renewal_id", renewalID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("renewal rejected", slog.String("renewal_id", rr.ID))
	response.OK(w, r, rr)
}
