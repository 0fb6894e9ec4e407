// Package api собирает HTTP-приложение: маршруты, middleware и зависимости.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	authhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/auth"
	companyhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/company"
	"github.com/magabrotheeeer/schoolhub/internal/api/handlers/health"
	notificationhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/notification"
	parenthandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/parent"
	paymenthandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/payment"
	renewalhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/renewal"
	schoolhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/school"
	subscriptionhandler "github.com/magabrotheeeer/schoolhub/internal/api/handlers/subscription"
	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// AuthClient вход и проверка токенов через сервис авторизации.
type AuthClient interface {
	authhandler.Authenticator
	middlewarectx.TokenValidator
}

// SubscriptionService подписки для обработчиков и проверки доступа школы.
type SubscriptionService interface {
	subscriptionhandler.Service
	middlewarectx.SubscriptionChecker
}

// Deps зависимости маршрутов.
type Deps struct {
	Auth          AuthClient
	Students      authhandler.StudentRegistrar
	Companies     companyhandler.Service
	Schools       schoolhandler.Service
	Parents       parenthandler.Service
	Subscriptions SubscriptionService
	Renewals      renewalhandler.Service
	Notifications notificationhandler.Service
	Payments      paymenthandler.Service
	Hub           http.Handler
	Health        map[string]health.Pinger
	Limiter       *middlewarectx.RateLimiter
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		metrics.Middleware,
	)

	auth := authhandler.New(logger, d.Auth, d.Students)
	companies := companyhandler.New(logger, d.Companies)
	schools := schoolhandler.New(logger, d.Schools)
	parents := parenthandler.New(logger, d.Parents)
	subs := subscriptionhandler.New(logger, d.Subscriptions)
	renewals := renewalhandler.New(logger, d.Renewals)
	notifications := notificationhandler.New(logger, d.Notifications)

	r.Route("/api/v1", func(r chi.Router) {
		// Без аутентификации и без ограничения частоты
		r.Post("/payments/webhook", paymenthandler.New(logger, d.Payments).ServeHTTP)
		r.Get("/health", health.New(logger, d.Health).ServeHTTP)

		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter))
			r.Post("/auth/login", auth.Login)
			r.Post("/students/signup", auth.StudentSignup)
			r.Post("/company/signup", companies.Signup)
			r.Post("/parents/registration-intents", parents.CreateIntent)
			r.Get("/plans", subs.Plans)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Auth, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter))

			r.Get("/subscriptions/me", subs.Me)
			r.Post("/subscriptions/checkout", subs.Checkout)
			r.Post("/subscriptions/cancel", subs.Cancel)
			r.Post("/subscriptions/renewal-requests", renewals.Create)

			r.Get("/notifications", notifications.List)
			r.Get("/notifications/unread-count", notifications.UnreadCount)
			r.Put("/notifications/read-all", notifications.MarkAllRead)
			r.Put("/notifications/{id}/read", notifications.MarkRead)

			r.With(middlewarectx.RequireRole(logger, models.RoleStudent)).
				Post("/students/join-school", schools.JoinSchool)

			r.Route("/parents", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleParent))
				r.Post("/link", parents.Link)
				r.Get("/children", parents.Children)
			})

			r.Route("/school", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleSchoolAdmin))
				r.Use(middlewarectx.SubscriptionStatusMiddleware(logger, d.Subscriptions))
				r.Post("/classes", schools.CreateClass)
				r.Get("/classes", schools.Classes)
				r.Post("/students", schools.CreateStudent)
				r.Get("/students", schools.Students)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleSuperAdmin))

				r.Get("/school-approval/pending", companies.Pending)
				r.Put("/school-approval/{companyId}/approve", companies.Approve)
				r.Put("/school-approval/{companyId}/reject", companies.Reject)

				r.Get("/subscriptions", subs.List)
				r.Post("/subscriptions", subs.Create)
				r.Put("/subscriptions/{id}", subs.Update)
				r.Delete("/subscriptions/{id}", subs.Delete)

				r.Get("/renewal-requests", renewals.List)
				r.Put("/renewal-requests/{id}/approve", renewals.Approve)
				r.Put("/renewal-requests/{id}/reject", renewals.Reject)
			})
		})
	})

	r.Handle("/ws", d.Hub)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
