// Package school реализует HTTP-обработчики управления школой: классы,
// ученики и присоединение ученика к классу по коду.
package school

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/api/request"
	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// Service описывает бизнес-логику школы.
type Service interface {
	CreateClass(ctx context.Context, tenantID string, in models.ClassInput) (*models.Class, error)
	Classes(ctx context.Context, tenantID string) ([]*models.Class, error)
	CreateStudent(ctx context.Context, tenantID string, in models.StudentInput) (*models.Student, error)
	Students(ctx context.Context, tenantID string, limit, offset int) ([]models.Student, error)
	JoinSchool(ctx context.Context, studentID, joinCode string) (*models.Student, error)
}

// Handler обрабатывает запросы школы.
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

// tenant возвращает арендатора администратора школы.
func tenant(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return "", false
	}
	if id.TenantID == "" {
		log.Error("school admin without tenant", slog.String("user_id", id.UserID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.ErrorCode(errs.CodeForbidden, "no school assigned"))
		return "", false
	}
	return id.TenantID, true
}

// CreateClass godoc
// @Summary Создать класс
// @Tags School
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ClassInput true "Класс"
// @Success 201 {object} response.OKResponse{data=models.Class}
// @Failure 403 {object} response.ErrorResponse "Лимит плана или подписка неактивна"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /school/classes [post]
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.school.CreateClass")

	tenantID, ok := tenant(w, r, log)
	if !ok {
		return
	}

	var req models.ClassInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	class, err := h.service.CreateClass(r.Context(), tenantID, req)
	if err != nil {
		log.Error("failed to create class", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("class created", slog.String("class_id", class.ID))
	response.Created(w, r, class)
}

// Classes godoc
// @Summary Классы школы
// @Tags School
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse{data=[]models.Class}
// @Router /school/classes [get]
func (h *Handler) Classes(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.school.Classes")

	tenantID, ok := tenant(w, r, log)
	if !ok {
		return
	}

	classes, err := h.service.Classes(r.Context(), tenantID)
	if err != nil {
		log.Error("failed to list classes", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, classes)
}

// CreateStudent godoc
// @Summary Создать ученика школы
// @Description Ученик получает номер зачисления вида ORG-2025-0001.
// @Tags School
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.StudentInput true "Ученик"
// @Success 201 {object} response.OKResponse{data=models.Student}
// @Failure 400 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 403 {object} response.ErrorResponse "Лимит плана или подписка неактивна"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /school/students [post]
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.school.CreateStudent")

	tenantID, ok := tenant(w, r, log)
	if !ok {
		return
	}

	var req models.StudentInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	st, err := h.service.CreateStudent(r.Context(), tenantID, req)
	if err != nil {
		log.Error("failed to create student", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("student created", slog.String("student_id", st.ID))
	response.Created(w, r, st)
}

// Students godoc
// @Summary Ученики школы
// @Tags School
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.OKResponse{data=[]models.Student}
// @Router /school/students [get]
func (h *Handler) Students(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.school.Students")

	tenantID, ok := tenant(w, r, log)
	if !ok {
		return
	}
	limit, offset, ok := request.Page(w, r, log)
	if !ok {
		return
	}

	students, err := h.service.Students(r.Context(), tenantID, limit, offset)
	if err != nil {
		log.Error("failed to list students", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, students)
}

// JoinSchool godoc
// @Summary Присоединиться к школе по коду класса
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.JoinSchoolInput true "Код класса"
// @Success 200 {object} response.OKResponse{data=models.Student}
// @Failure 400 {object} response.ErrorResponse "Неверный код"
// @Failure 403 {object} response.ErrorResponse "Лимит плана школы"
// @Router /students/join-school [post]
func (h *Handler) JoinSchool(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.school.JoinSchool")

	id, ok := middlewarectx.RequireIdentity(w, r, log)
	if !ok {
		return
	}

	var req models.JoinSchoolInput
	if !request.Decode(w, r, log, &req) {
		return
	}

	st, err := h.service.JoinSchool(r.Context(), id.UserID, req.JoinCode)
	if err != nil {
		log.Error("failed to join school", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("student joined school", slog.String("student_id", st.ID))
	response.OK(w, r, st)
}
