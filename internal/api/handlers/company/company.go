// Package company реализует HTTP-обработчики регистрации школ и их
// одобрения супер-администратором.
package company

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/api/request"
	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// RejectRequest причина отказа школе.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Service описывает бизнес-логику регистрации школ.
type Service interface {
	Signup(ctx context.Context, in models.CompanySignup) (*models.Company, error)
	Pending(ctx context.Context) ([]*models.Company, error)
	Approve(ctx context.Context, companyID, reviewerID string) (*models.Company, error)
	Reject(ctx context.Context, companyID, reviewerID, reason string) (*models.Company, error)
}

// Handler обрабатывает запросы регистрации и одобрения школ.
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

// Signup godoc
// @Summary Регистрация школы
// @Description Создаёт компанию в статусе pending_approval, организацию и администратора школы.
// @Tags Company
// @Accept json
// @Produce json
// @Param request body models.CompanySignup true "Данные школы"
// @Success 201 {object} response.OKResponse{data=models.Company}
// @Failure 400 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /company/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.company.Signup")

	var req models.CompanySignup
	if !request.Decode(w, r, log, &req) {
		return
	}

	c, err := h.service.Signup(r.Context(), req)
	if err != nil {
		log.Error("company signup failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("company registered", slog.String("company_id", c.ID))
	response.Created(w, r, c)
}

// Pending godoc
// @Summary Школы, ожидающие одобрения
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=[]models.Company}
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Router /admin/school-approval/pending [get]
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.company.Pending")

	list, err := h.service.Pending(r.Context())
	if err != nil {
		log.Error("failed to list pending companies", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, list)
}

// Approve godoc
// @Summary Одобрить школу
// @Description Активирует администратора школы и открывает пробную подписку.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param companyId path string true "ID компании"
// @Success 200 {object} response.OKResponse{data=models.Company}
// @Failure 404 {object} response.ErrorResponse "Компания не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже рассмотрена"
// @Router /admin/school-approval/{companyId}/approve [put]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.company.Approve")

	reviewer, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	companyID, ok := request.PathID(w, r, log, "companyId")
	if !ok {
		return
	}
	c, err := h.service.Approve(r.Context(), companyID, reviewer.UserID)
	if err != nil {
		log.Error("failed to approve company", slog.String("company_id", companyID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("company approved", slog.String("company_id", c.ID))
	response.OK(w, r, c)
}

// Reject godoc
// @Summary Отклонить школу
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param companyId path string true "ID компании"
// @Param request body RejectRequest true "Причина отказа"
// @Success 200 {object} response.OKResponse{data=models.Company}
// @Failure 404 {object} response.ErrorResponse "Компания не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже рассмотрена"
// @Router /admin/school-approval/{companyId}/reject [put]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.company.Reject")

	reviewer, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req RejectRequest
	if !request.Decode(w, r, log, &req) {
		return
	}

	companyID, ok := request.PathID(w, r, log, "companyId")
	if !ok {
		return
	}
	c, err := h.service.Reject(r.Context(), companyID, reviewer.UserID, req.Reason)
	if err != nil {
		log.Error("failed to reject company", slog.String("company_id", companyID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("company rejected", slog.String("company_id", c.ID))
	response.OK(w, r, c)
}
