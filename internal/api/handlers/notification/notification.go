// Package notification реализует HTTP-обработчики уведомлений пользователя.
package notification

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/api/request"
	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// Service описывает бизнес-логику уведомлений.
type Service interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Handler обрабатывает запросы уведомлений.
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

// List godoc
// @Summary Уведомления пользователя
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Только непрочитанные"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.OKResponse{data=[]models.Notification}
// @Router /notifications [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.notification.List")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var unread bool
	if v := r.URL.Query().Get("unread"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			log.Error("invalid unread flag", slog.String("unread", v))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid unread flag"))
			return
		}
		unread = parsed
	}
	limit, offset, ok := request.Page(w, r, log)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), models.NotificationFilter{
		UserID: id.UserID, UnreadOnly: unread, Limit: limit, Offset: offset,
	})
	if err != nil {
		log.Error("failed to list notifications", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, list)
}

// UnreadCount godoc
// @Summary Число непрочитанных уведомлений
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=map[string]int}
// @Router /notifications/unread-count [get]
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.notification.UnreadCount")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	n, err := h.service.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		log.Error("failed to count unread notifications", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, map[string]int{"count": n})
}

// MarkRead godoc
// @Summary Отметить уведомление прочитанным
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID уведомления"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse "Уведомление не найдено"
// @Router /notifications/{id}/read [put]
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.notification.MarkRead")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	notificationID, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), notificationID, id.UserID); err != nil {
		log.Error("failed to mark notification read", slog.String("notification_id", notificationID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, map[string]string{"id": notificationID})
}

// MarkAllRead godoc
// @Summary Отметить все уведомления прочитанными
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=map[string]int64}
// @Router /notifications/read-all [put]
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.notification.MarkAllRead")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	n, err := h.service.MarkAllRead(r.Context(), id.UserID)
	if err != nil {
		log.Error("failed to mark all notifications read", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("notifications marked read", slog.Int64("updated", n))
	response.OK(w, r, map[string]int64{"updated": n})
}
