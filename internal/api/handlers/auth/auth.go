// Package auth реализует HTTP-обработчики входа и самостоятельной регистрации ученика.
//
// Вход делегируется gRPC-сервису авторизации; регистрация ученика создаёт
// пользователя на бесплатном плане с кодом привязки родителя.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/schoolhub/internal/api/request"
	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// LoginRequest учётные данные пользователя.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse токен доступа и данные пользователя.
type LoginResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// Authenticator выполняет вход пользователя.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, *models.Identity, error)
}

// StudentRegistrar регистрирует независимого ученика.
type StudentRegistrar interface {
	Signup(ctx context.Context, in models.StudentSignup) (*models.User, error)
}

// Handler обрабатывает запросы авторизации.
type Handler struct {
	log      *slog.Logger
	auth     Authenticator
	students StudentRegistrar
}

// New создаёт Handler.
func New(log *slog.Logger, auth Authenticator, students StudentRegistrar) *Handler {
	return &Handler{log: log, auth: auth, students: students}
}

// Login godoc
// @Summary Вход пользователя
// @Description Проверяет email и пароль и возвращает JWT.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учётные данные"
// @Success 200 {object} response.OKResponse{data=LoginResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учётные данные"
// @Failure 403 {object} response.ErrorResponse "Школа ожидает одобрения или аккаунт отключён"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req LoginRequest
	if !request.Decode(w, r, log, &req) {
		return
	}

	token, id, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Warn("login failed", slog.String("email", req.Email), sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("login success", slog.String("user_id", id.UserID), slog.String("role", id.Role))
	response.OK(w, r, LoginResponse{Token: token, User: *id})
}

// StudentSignup godoc
// @Summary Регистрация ученика
// @Description Создаёт независимого ученика на бесплатном плане и выдаёт код привязки родителя.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.StudentSignup true "Данные ученика"
// @Success 201 {object} response.OKResponse{data=models.User}
// @Failure 400 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /students/signup [post]
func (h *Handler) StudentSignup(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.StudentSignup"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.StudentSignup
	if !request.Decode(w, r, log, &req) {
		return
	}

	u, err := h.students.Signup(r.Context(), req)
	if err != nil {
		log.Error("student signup failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("student registered", slog.String("user_id", u.ID))
	response.Created(w, r, u)
}
