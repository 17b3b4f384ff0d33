package httpapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

type editOrderRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (g *Gateway) createOrder(c echo.Context) error {
	var req orders.CreateOrderInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RestaurantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "restaurantId is required")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "order must contain at least one item")
	}
	for idx, item := range req.Items {
		if item.DishID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("items[%d].dishId is required", idx))
		}
	}

	out := g.orders.CreateOrder(c.Request().Context(), currentUser(c), req)
	return c.JSON(statusFor(out.CoreOutput, http.StatusCreated), out)
}

func (g *Gateway) getOrders(c echo.Context) error {
	status := domain.OrderStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
	}

	out := g.orders.GetOrders(c.Request().Context(), currentUser(c), orders.GetOrdersInput{Status: status})
	return c.JSON(statusFor(out.CoreOutput, http.StatusOK), out)
}

func (g *Gateway) getOrder(c echo.Context) error {
	out := g.orders.GetOrder(c.Request().Context(), currentUser(c), orders.GetOrderInput{ID: c.Param("id")})
	return c.JSON(statusFor(out.CoreOutput, http.StatusOK), out)
}

func (g *Gateway) getOrderTimeline(c echo.Context) error {
	out := g.orders.GetOrderTimeline(c.Request().Context(), currentUser(c), orders.GetOrderInput{ID: c.Param("id")})
	return c.JSON(statusFor(out.CoreOutput, http.StatusOK), out)
}

func (g *Gateway) editOrder(c echo.Context) error {
	var req editOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
	}

	out := g.orders.EditOrder(c.Request().Context(), currentUser(c), orders.EditOrderInput{
		ID:     c.Param("id"),
		Status: req.Status,
	})
	return c.JSON(statusFor(out.CoreOutput, http.StatusOK), out)
}

func (g *Gateway) takeOrder(c echo.Context) error {
	out := g.orders.TakeOrder(c.Request().Context(), currentUser(c), orders.TakeOrderInput{ID: c.Param("id")})
	return c.JSON(statusFor(out.CoreOutput, http.StatusOK), out)
}
