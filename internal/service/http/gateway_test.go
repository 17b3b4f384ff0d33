package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
	"github.com/vladislavdragonenkov/fooddelivery/internal/storage/memory"
)

type gatewayEnv struct {
	echo   *echo.Echo
	tokens *auth.Tokens
	broker *notify.Broker

	customer domain.User
	stranger domain.User
	owner    domain.User
	driver   domain.User
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.NewEntry(log.New())

	env := &gatewayEnv{
		customer: domain.User{ID: "client-1", Email: "client@example.com", Role: domain.RoleClient},
		stranger: domain.User{ID: "client-2", Email: "stranger@example.com", Role: domain.RoleClient},
		owner:    domain.User{ID: "owner-1", Email: "owner@example.com", Role: domain.RoleOwner},
		driver:   domain.User{ID: "driver-1", Email: "driver@example.com", Role: domain.RoleDelivery},
	}

	users := memory.NewUserRepository()
	for _, user := range []domain.User{env.customer, env.stranger, env.owner, env.driver} {
		require.NoError(t, users.Create(ctx, user))
	}
	restaurants := memory.NewRestaurantRepository()
	require.NoError(t, restaurants.Create(ctx, domain.Restaurant{ID: "r-1", Name: "Pizzeria", OwnerID: env.owner.ID}))
	dishes := memory.NewDishRepository()
	require.NoError(t, dishes.Create(ctx, domain.Dish{
		ID:           "dish-1",
		RestaurantID: "r-1",
		Name:         "Pizza",
		PriceMinor:   10,
		Options: []domain.DishOption{{
			Name:    "Size",
			Choices: []domain.DishChoice{{Name: "Small"}, {Name: "Large", ExtraMinor: domain.Extra(2)}},
		}},
	}))

	env.broker = notify.NewBroker(notify.WithLogger(logger))
	t.Cleanup(func() { _ = env.broker.Close() })

	svc := orders.NewService(orders.Dependencies{
		Orders:      memory.NewOrderRepository(),
		Restaurants: restaurants,
		Dishes:      dishes,
		Timeline:    memory.NewTimelineRepository(),
		Publisher:   env.broker,
		Logger:      logger,
	})

	tokens, err := auth.NewTokens("test-secret")
	require.NoError(t, err)
	env.tokens = tokens
	env.echo = NewGateway(svc, auth.NewAuthenticator(tokens, users, logger), logger).Echo()
	return env
}

func (e *gatewayEnv) token(t *testing.T, user domain.User) string {
	t.Helper()
	token, err := e.tokens.Sign(user.ID)
	require.NoError(t, err)
	return token
}

func (e *gatewayEnv) do(t *testing.T, method, path, body string, user *domain.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != nil {
		req.Header.Set(auth.HeaderName, e.token(t, *user))
	}
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func (e *gatewayEnv) createOrder(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/orders",
		`{"restaurantId":"r-1","items":[{"dishId":"dish-1","options":[{"name":"Size","choice":"Large"}]}]}`, &e.customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out orders.CreateOrderOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.OK)
	return out.OrderID
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGateway_Authentication(t *testing.T) {
	env := newGatewayEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/orders", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[errorBody](t, rec)
	require.False(t, body.OK)
	require.Contains(t, body.Error, auth.HeaderName)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set(auth.HeaderName, "garbage")
	rec = httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_RoleGating(t *testing.T) {
	env := newGatewayEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/orders", `{"restaurantId":"r-1","items":[{"dishId":"dish-1"}]}`, &env.owner)
	require.Equal(t, http.StatusForbidden, rec.Code)

	orderID := env.createOrder(t)
	rec = env.do(t, http.MethodPost, "/v1/orders/"+orderID+"/take", "", &env.customer)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/subscriptions/pending", "", &env.driver)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateway_BadRequests(t *testing.T) {
	env := newGatewayEnv(t)

	for name, tc := range map[string]struct {
		method, path, body string
		user               domain.User
	}{
		"malformed body":  {http.MethodPost, "/v1/orders", `{`, env.customer},
		"no restaurant":   {http.MethodPost, "/v1/orders", `{"items":[{"dishId":"dish-1"}]}`, env.customer},
		"no items":        {http.MethodPost, "/v1/orders", `{"restaurantId":"r-1"}`, env.customer},
		"empty dish":      {http.MethodPost, "/v1/orders", `{"restaurantId":"r-1","items":[{}]}`, env.customer},
		"unknown status":  {http.MethodPatch, "/v1/orders/o-1", `{"status":"Burnt"}`, env.owner},
		"status filter":   {http.MethodGet, "/v1/orders?status=Burnt", "", env.owner},
		"filter too long": {http.MethodGet, "/v1/subscriptions/cooked?filter=" + strings.Repeat("a", maxFilterLength+1), "", env.driver},
		"invalid filter":  {http.MethodGet, "/v1/subscriptions/cooked?filter=key%20%3D%3D", "", env.driver},
	} {
		user := tc.user
		rec := env.do(t, tc.method, tc.path, tc.body, &user)
		require.Equal(t, http.StatusBadRequest, rec.Code, name+": "+rec.Body.String())
	}
}

func TestGateway_OrderLifecycle(t *testing.T) {
	env := newGatewayEnv(t)
	orderID := env.createOrder(t)

	rec := env.do(t, http.MethodGet, "/v1/orders/"+orderID, "", &env.owner)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[orders.GetOrderOutput](t, rec)
	require.True(t, got.OK)
	require.EqualValues(t, 12, got.Order.TotalMinor)

	rec = env.do(t, http.MethodGet, "/v1/orders/"+orderID, "", &env.stranger)
	require.Equal(t, http.StatusForbidden, rec.Code)
	hidden := decodeBody[orders.GetOrderOutput](t, rec)
	require.False(t, hidden.OK)
	require.Equal(t, orders.MsgCannotSee, hidden.Error)

	rec = env.do(t, http.MethodGet, "/v1/orders/missing", "", &env.customer)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/v1/orders/"+orderID, `{"status":"Delivered"}`, &env.owner)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, orders.MsgNotAllowed, decodeBody[orders.EditOrderOutput](t, rec).Error)

	rec = env.do(t, http.MethodPatch, "/v1/orders/"+orderID, `{"status":"Cooked"}`, &env.owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/orders/"+orderID+"/take", "", &env.driver)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/orders/"+orderID+"/take", "", &env.driver)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, orders.MsgAlreadyHasDriver, decodeBody[orders.TakeOrderOutput](t, rec).Error)

	rec = env.do(t, http.MethodGet, "/v1/orders?status=Cooked", "", &env.owner)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[orders.GetOrdersOutput](t, rec)
	require.Len(t, list.Orders, 1)
	require.Equal(t, env.driver.ID, list.Orders[0].DriverID)

	rec = env.do(t, http.MethodGet, "/v1/orders/"+orderID+"/timeline", "", &env.customer)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[orders.GetOrderTimelineOutput](t, rec).Events, 3)
}

func TestGateway_OrderUpdatesSSE(t *testing.T) {
	env := newGatewayEnv(t)
	orderID := env.createOrder(t)

	rec := env.do(t, http.MethodGet, "/v1/subscriptions/orders/"+orderID, "", &env.stranger)
	require.Equal(t, http.StatusForbidden, rec.Code)

	server := httptest.NewServer(env.echo)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/subscriptions/orders/"+orderID, nil)
	require.NoError(t, err)
	req.Header.Set(auth.HeaderName, env.token(t, env.customer))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	require.Eventually(t, func() bool {
		return env.broker.SubscriberCount(notify.TopicOrderUpdates) == 1
	}, time.Second, 5*time.Millisecond)

	rec = env.do(t, http.MethodPatch, "/v1/orders/"+orderID, `{"status":"Cooking"}`, &env.owner)
	require.Equal(t, http.StatusOK, rec.Code)

	msg := readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, notify.TopicOrderUpdates, msg.Topic)
	require.Equal(t, orderID, msg.Key)
	event, err := notify.DecodeOrderUpdate(msg)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCooking, event.OrderUpdates.Status)
}

func readEvent(t *testing.T, reader *bufio.Reader) notify.Message {
	t.Helper()
	var eventName string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var msg notify.Message
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
			require.Equal(t, string(msg.Topic), eventName)
			return msg
		}
	}
}

func TestSubscribeErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.NewOpError(domain.KindNotFound, orders.MsgOrderNotFound), http.StatusNotFound},
		{domain.NewOpError(domain.KindForbidden, orders.MsgCannotSee), http.StatusForbidden},
		{domain.NewOpError(domain.KindInternal, orders.MsgCannotGetOrder), http.StatusInternalServerError},
		{orders.ErrSubscriptionsDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		var httpErr *echo.HTTPError
		require.True(t, errors.As(subscribeError(tc.err), &httpErr))
		require.Equal(t, tc.code, httpErr.Code, tc.err.Error())
	}
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusCreated, statusFor(orders.CoreOutput{OK: true}, http.StatusCreated))
	require.Equal(t, http.StatusNotFound, statusFor(orders.CoreOutput{Kind: domain.KindNotFound}, http.StatusOK))
	require.Equal(t, http.StatusForbidden, statusFor(orders.CoreOutput{Kind: domain.KindForbidden}, http.StatusOK))
	require.Equal(t, http.StatusConflict, statusFor(orders.CoreOutput{Kind: domain.KindConflict}, http.StatusOK))
	require.Equal(t, http.StatusBadRequest, statusFor(orders.CoreOutput{Kind: domain.KindInvalid}, http.StatusOK))
	require.Equal(t, http.StatusInternalServerError, statusFor(orders.CoreOutput{Kind: domain.KindInternal}, http.StatusOK))
}
