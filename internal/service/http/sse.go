package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

const (
	maxFilterLength   = 2048
	keepAliveInterval = 15 * time.Second
)

func (g *Gateway) pendingOrders(c echo.Context) error {
	filter, err := filterParam(c)
	if err != nil {
		return err
	}
	sub, err := g.orders.SubscribePendingOrders(c.Request().Context(), currentUser(c), filter)
	if err != nil {
		return subscribeError(err)
	}
	return g.stream(c, sub)
}

func (g *Gateway) cookedOrders(c echo.Context) error {
	filter, err := filterParam(c)
	if err != nil {
		return err
	}
	sub, err := g.orders.SubscribeCookedOrders(c.Request().Context(), currentUser(c), filter)
	if err != nil {
		return subscribeError(err)
	}
	return g.stream(c, sub)
}

func (g *Gateway) orderUpdates(c echo.Context) error {
	filter, err := filterParam(c)
	if err != nil {
		return err
	}
	sub, err := g.orders.SubscribeOrderUpdates(c.Request().Context(), currentUser(c), c.Param("id"), filter)
	if err != nil {
		return subscribeError(err)
	}
	return g.stream(c, sub)
}

// stream пишет сообщения подписки как события SSE, пока клиент не отключится.
func (g *Gateway) stream(c echo.Context, sub *notify.Subscription) error {
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	logger := g.logger.WithFields(log.Fields{
		"topic":   sub.Topic(),
		"user_id": currentUser(c).ID,
	})
	logger.Debug("sse stream opened")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("sse stream closed by client")
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := writeEvent(w, msg); err != nil {
				logger.WithError(err).Debug("failed to write sse event")
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, data)
	return err
}

func filterParam(c echo.Context) (string, error) {
	filter := c.QueryParam("filter")
	if len(filter) > maxFilterLength {
		return "", echo.NewHTTPError(http.StatusBadRequest, "filter too long")
	}
	return filter, nil
}

func subscribeError(err error) error {
	if opErr, ok := domain.AsOpError(err); ok {
		switch opErr.Kind {
		case domain.KindNotFound:
			return echo.NewHTTPError(http.StatusNotFound, opErr.Message)
		case domain.KindForbidden:
			return echo.NewHTTPError(http.StatusForbidden, opErr.Message)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, opErr.Message)
		}
	}
	switch {
	case errors.Is(err, orders.ErrInvalidFilter):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrSubscriptionsDisabled), errors.Is(err, notify.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot open subscription").SetInternal(err)
	}
}
