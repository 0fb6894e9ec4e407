// Package docs содержит описание API в формате Swagger 2.0 для /docs.
// Обновляется командой swag init -g cmd/api/main.go.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/auth/login": {
			"post": {
				"tags": [
					"Auth"
				],
				"summary": "Вход",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"401": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/auth.LoginRequest"
						}
					}
				]
			}
		},
		"/students/signup": {
			"post": {
				"tags": [
					"Auth"
				],
				"summary": "Регистрация ученика",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"422": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.StudentSignup"
						}
					}
				]
			}
		},
		"/company/signup": {
			"post": {
				"tags": [
					"Companies"
				],
				"summary": "Регистрация школы или компании",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"422": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.CompanySignup"
						}
					}
				]
			}
		},
		"/admin/school-approval/pending": {
			"get": {
				"tags": [
					"Companies"
				],
				"summary": "Заявки на подключение",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/admin/school-approval/{companyId}/approve": {
			"put": {
				"tags": [
					"Companies"
				],
				"summary": "Одобрить школу",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"409": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "companyId",
						"required": true,
						"type": "string"
					}
				]
			}
		},
		"/admin/school-approval/{companyId}/reject": {
			"put": {
				"tags": [
					"Companies"
				],
				"summary": "Отклонить школу",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"409": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "companyId",
						"required": true,
						"type": "string"
					},
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/company.RejectRequest"
						}
					}
				]
			}
		},
		"/school/classes": {
			"post": {
				"tags": [
					"School"
				],
				"summary": "Создать класс",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.ClassInput"
						}
					}
				]
			},
			"get": {
				"tags": [
					"School"
				],
				"summary": "Классы школы",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/school/students": {
			"post": {
				"tags": [
					"School"
				],
				"summary": "Создать ученика",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.StudentInput"
						}
					}
				]
			},
			"get": {
				"tags": [
					"School"
				],
				"summary": "Ученики школы",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "query",
						"name": "limit",
						"type": "integer"
					},
					{
						"in": "query",
						"name": "offset",
						"type": "integer"
					}
				]
			}
		},
		"/students/join-school": {
			"post": {
				"tags": [
					"School"
				],
				"summary": "Присоединиться к школе",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.JoinSchoolInput"
						}
					}
				]
			}
		},
		"/parents/registration-intents": {
			"post": {
				"tags": [
					"Parents"
				],
				"summary": "Намерение регистрации родителя",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"422": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.ParentIntentInput"
						}
					}
				]
			}
		},
		"/parents/link": {
			"post": {
				"tags": [
					"Parents"
				],
				"summary": "Привязать ребёнка",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"403": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.LinkChildInput"
						}
					}
				]
			}
		},
		"/parents/children": {
			"get": {
				"tags": [
					"Parents"
				],
				"summary": "Дети родителя",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/plans": {
			"get": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Каталог планов",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				}
			}
		},
		"/subscriptions/me": {
			"get": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Моя подписка",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/subscriptions/checkout": {
			"post": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Оплата плана",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/subscription.CheckoutRequest"
						}
					}
				]
			}
		},
		"/subscriptions/cancel": {
			"post": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Отменить подписку",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/admin/subscriptions": {
			"get": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Подписки",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "query",
						"name": "status",
						"type": "string"
					},
					{
						"in": "query",
						"name": "limit",
						"type": "integer"
					},
					{
						"in": "query",
						"name": "offset",
						"type": "integer"
					}
				]
			},
			"post": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Создать подписку",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"422": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.SubscriptionInput"
						}
					}
				]
			}
		},
		"/admin/subscriptions/{id}": {
			"put": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Изменить подписку",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"422": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "id",
						"required": true,
						"type": "string"
					},
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.SubscriptionInput"
						}
					}
				]
			},
			"delete": {
				"tags": [
					"Subscriptions"
				],
				"summary": "Удалить подписку",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "id",
						"required": true,
						"type": "string"
					}
				]
			}
		},
		"/subscriptions/renewal-requests": {
			"post": {
				"tags": [
					"Renewals"
				],
				"summary": "Заявка на продление",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"409": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/models.RenewalRequestInput"
						}
					}
				]
			}
		},
		"/admin/renewal-requests": {
			"get": {
				"tags": [
					"Renewals"
				],
				"summary": "Заявки на продление",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "query",
						"name": "status",
						"type": "string"
					}
				]
			}
		},
		"/admin/renewal-requests/{id}/approve": {
			"put": {
				"tags": [
					"Renewals"
				],
				"summary": "Одобрить заявку",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"409": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "id",
						"required": true,
						"type": "string"
					},
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/renewal.ReviewRequest"
						}
					}
				]
			}
		},
		"/admin/renewal-requests/{id}/reject": {
			"put": {
				"tags": [
					"Renewals"
				],
				"summary": "Отклонить заявку",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"409": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "id",
						"required": true,
						"type": "string"
					},
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/renewal.ReviewRequest"
						}
					}
				]
			}
		},
		"/notifications": {
			"get": {
				"tags": [
					"Notifications"
				],
				"summary": "Уведомления",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "query",
						"name": "unread",
						"type": "boolean"
					},
					{
						"in": "query",
						"name": "limit",
						"type": "integer"
					},
					{
						"in": "query",
						"name": "offset",
						"type": "integer"
					}
				]
			}
		},
		"/notifications/unread-count": {
			"get": {
				"tags": [
					"Notifications"
				],
				"summary": "Число непрочитанных",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/notifications/{id}/read": {
			"put": {
				"tags": [
					"Notifications"
				],
				"summary": "Прочитать уведомление",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"404": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				],
				"parameters": [
					{
						"in": "path",
						"name": "id",
						"required": true,
						"type": "string"
					}
				]
			}
		},
		"/notifications/read-all": {
			"put": {
				"tags": [
					"Notifications"
				],
				"summary": "Прочитать все",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/payments/webhook": {
			"post": {
				"tags": [
					"Payments"
				],
				"summary": "Вебхук Stripe",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"400": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					},
					"500": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				},
				"parameters": [
					{
						"in": "header",
						"name": "Stripe-Signature",
						"required": true,
						"type": "string"
					}
				]
			}
		},
		"/health": {
			"get": {
				"tags": [
					"Health"
				],
				"summary": "Состояние сервиса",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.OKResponse"
						}
					},
					"503": {
						"description": "Error",
						"schema": {
							"$ref": "#/definitions/response.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"response.OKResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"example": "OK"
				},
				"data": {}
			}
		},
		"response.ErrorResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"example": "Error"
				},
				"error": {
					"type": "string"
				},
				"code": {
					"type": "string",
					"example": "INVALID_BODY"
				}
			}
		},
		"auth.LoginRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			}
		},
		"models.StudentSignup": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			}
		},
		"models.CompanySignup": {
			"type": "object",
			"properties": {
				"companyName": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"contactName": {
					"type": "string"
				},
				"phone": {
					"type": "string"
				},
				"address": {
					"type": "string"
				},
				"kind": {
					"type": "string",
					"enum": [
						"school",
						"company"
					]
				}
			}
		},
		"company.RejectRequest": {
			"type": "object",
			"properties": {
				"reason": {
					"type": "string"
				}
			}
		},
		"models.ClassInput": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"grade": {
					"type": "string"
				}
			}
		},
		"models.StudentInput": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"classId": {
					"type": "string"
				}
			}
		},
		"models.JoinSchoolInput": {
			"type": "object",
			"properties": {
				"joinCode": {
					"type": "string"
				}
			}
		},
		"models.ParentIntentInput": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				},
				"studentLinkCode": {
					"type": "string"
				},
				"plan": {
					"type": "string"
				},
				"billingCycle": {
					"type": "string",
					"enum": [
						"monthly",
						"yearly"
					]
				}
			}
		},
		"models.LinkChildInput": {
			"type": "object",
			"properties": {
				"studentLinkCode": {
					"type": "string"
				}
			}
		},
		"subscription.CheckoutRequest": {
			"type": "object",
			"properties": {
				"plan": {
					"type": "string"
				},
				"billingCycle": {
					"type": "string",
					"enum": [
						"monthly",
						"yearly"
					]
				}
			}
		},
		"models.SubscriptionInput": {
			"type": "object",
			"properties": {
				"userId": {
					"type": "string"
				},
				"tenantId": {
					"type": "string"
				},
				"plan": {
					"type": "string"
				},
				"status": {
					"type": "string"
				},
				"billingCycle": {
					"type": "string"
				},
				"startDate": {
					"type": "string"
				},
				"autoRenew": {
					"type": "boolean"
				}
			}
		},
		"models.RenewalRequestInput": {
			"type": "object",
			"properties": {
				"plan": {
					"type": "string"
				},
				"billingCycle": {
					"type": "string",
					"enum": [
						"monthly",
						"yearly"
					]
				},
				"note": {
					"type": "string"
				}
			}
		},
		"renewal.ReviewRequest": {
			"type": "object",
			"properties": {
				"adminNote": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"description": "Type \"Bearer\" followed by a space and JWT token.",
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo метаданные описания API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "SchoolHub API",
	Description:      "API платформы для школ, учеников и родителей: регистрация, подписки, уведомления",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
