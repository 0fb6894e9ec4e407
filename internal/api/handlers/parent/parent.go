// Package parent реализует HTTP-обработчики регистрации родителя через
// намерение и привязки детей по коду ученика.
package parent

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

// Service описывает бизнес-логику родителей.
type Service interface {
	CreateIntent(ctx context.Context, in models.ParentIntentInput) (*models.ParentIntentResult, error)
	LinkChild(ctx context.Context, parent models.Identity, rawCode string) (*models.Student, error)
	Children(ctx context.Context, parentID string) ([]models.Student, error)
}

// Handler обрабатывает запросы родителей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// CreateIntent godoc
// @Summary Намерение регистрации родителя
// @Description Для платного плана возвращает ссылку на оплату; для free аккаунт создаётся сразу.
// @Tags Parents
// @Accept json
// @Produce json
// @Param request body models.ParentIntentInput true "Данные родителя"
// @Success 201 {object} response.OKResponse{data=models.ParentIntentResult}
// @Failure 400 {object} response.ErrorResponse "Неверный код ученика, план или email"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /parents/registration-intents [post]
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.parent.CreateIntent"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.ParentIntentInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	res, err := h.service.CreateIntent(r.Context(), req)
	if err != nil {
		log.Error("failed to create registration intent", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("registration intent created", slog.String("intent_id", res.IntentID), slog.String("plan", req.Plan))
	response.Created(w, r, res)
}

// Link godoc
// @Summary Привязать ребёнка
// @Tags Parents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.LinkChildInput true "Код ученика"
// @Success 200 {object} response.OKResponse{data=models.Student}
// @Failure 400 {object} response.ErrorResponse "Неверный код"
// @Failure 403 {object} response.ErrorResponse "Лимит детей плана"
// @Router /parents/link [post]
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.parent.Link"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req models.LinkChildInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	st, err := h.service.LinkChild(r.Context(), id, req.StudentLinkCode)
	if err != nil {
		log.Error("failed to link child", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("child linked", slog.String("parent_id", id.UserID), slog.String("student_id", st.ID))
	response.OK(w, r, st)
}

// Children godoc
// @Summary Дети родителя
// @Tags Parents
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=[]models.Student}
// @Router /parents/children [get]
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.parent.Children"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	children, err := h.service.Children(r.Context(), id.UserID)
	if err != nil {
		log.Error("failed to list children", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, children)
}
