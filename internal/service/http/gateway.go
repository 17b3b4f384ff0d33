// Package httpapi: HTTP/JSON шлюз к менеджеру заказов с подписками через Server-Sent Events.
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

const userContextKey = "fd.user"

// errorBody: ответ на транспортные отказы в том же формате {ok,error}, что и бизнес-отказы.
type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Gateway обслуживает REST-маршруты /v1.
type Gateway struct {
	orders        *orders.Service
	authenticator domain.Authenticator
	logger        *log.Entry
}

// NewGateway создаёт шлюз.
func NewGateway(svc *orders.Service, authenticator domain.Authenticator, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.WithField("component", "http-gateway")
	}
	return &Gateway{orders: svc, authenticator: authenticator, logger: logger}
}

// Echo собирает роутер со всеми маршрутами.
func (g *Gateway) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = g.handleError
	e.Use(middleware.Recover())
	g.Register(e)
	return e
}

// Register добавляет маршруты /v1 к существующему echo.
func (g *Gateway) Register(e *echo.Echo) {
	v1 := e.Group("/v1", g.authenticate)

	v1.POST("/orders", g.createOrder, requireRole(domain.RoleClient))
	v1.GET("/orders", g.getOrders)
	v1.GET("/orders/:id", g.getOrder)
	v1.GET("/orders/:id/timeline", g.getOrderTimeline)
	v1.PATCH("/orders/:id", g.editOrder)
	v1.POST("/orders/:id/take", g.takeOrder, requireRole(domain.RoleDelivery))

	v1.GET("/subscriptions/pending", g.pendingOrders, requireRole(domain.RoleOwner))
	v1.GET("/subscriptions/cooked", g.cookedOrders, requireRole(domain.RoleDelivery))
	v1.GET("/subscriptions/orders/:id", g.orderUpdates)
}

// authenticate читает заголовок x-jwt и кладёт пользователя в контекст запроса.
func (g *Gateway) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimSpace(c.Request().Header.Get(auth.HeaderName))
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+auth.HeaderName+" header")
		}

		user, err := g.authenticator.Authenticate(c.Request().Context(), token)
		if err != nil {
			if auth.IsUnauthenticated(err) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
			}
			g.logger.WithError(err).WithField("path", c.Path()).Error("authentication failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "authentication failed")
		}

		c.Set(userContextKey, user)
		c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), user)))
		return next(c)
	}
}

func requireRole(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !auth.HasRole(currentUser(c), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "role is not allowed to call this endpoint")
			}
			return next(c)
		}
	}
}

func currentUser(c echo.Context) domain.User {
	user, _ := c.Get(userContextKey).(domain.User)
	return user
}

// handleError отдаёт ошибки echo в формате {ok:false,error}.
func (g *Gateway) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	} else {
		g.logger.WithError(err).WithField("path", c.Path()).Error("unhandled http error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{OK: false, Error: message})
	}
	if err != nil {
		g.logger.WithError(err).Warn("failed to write error response")
	}
}

// statusFor переводит результат операции в HTTP-статус.
func statusFor(core orders.CoreOutput, success int) int {
	if core.OK {
		return success
	}
	switch core.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
