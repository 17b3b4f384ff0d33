package grpcsvc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

// ServiceName: полное имя gRPC-сервиса.
const ServiceName = "fooddelivery.v1.OrderService"

// Полные имена методов, используются интерсепторами и клиентом.
const (
	MethodCreateOrder      = "/" + ServiceName + "/CreateOrder"
	MethodGetOrders        = "/" + ServiceName + "/GetOrders"
	MethodGetOrder         = "/" + ServiceName + "/GetOrder"
	MethodEditOrder        = "/" + ServiceName + "/EditOrder"
	MethodTakeOrder        = "/" + ServiceName + "/TakeOrder"
	MethodGetOrderTimeline = "/" + ServiceName + "/GetOrderTimeline"
	MethodPendingOrders    = "/" + ServiceName + "/PendingOrders"
	MethodCookedOrders     = "/" + ServiceName + "/CookedOrders"
	MethodOrderUpdates     = "/" + ServiceName + "/OrderUpdates"
)

// SubscribeRequest открывает поток уведомлений.
type SubscribeRequest struct {
	// OrderID обязателен только для OrderUpdates.
	OrderID string `json:"orderId,omitempty"`
	// Filter: необязательное CEL-выражение над topic, key, published_ms и json.
	Filter string `json:"filter,omitempty"`
}

// NotificationStream: серверная сторона потока уведомлений.
type NotificationStream interface {
	Send(msg *notify.Message) error
	Context() context.Context
}

// OrderServiceServer: контракт сервиса заказов.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, in *orders.CreateOrderInput) (*orders.CreateOrderOutput, error)
	GetOrders(ctx context.Context, in *orders.GetOrdersInput) (*orders.GetOrdersOutput, error)
	GetOrder(ctx context.Context, in *orders.GetOrderInput) (*orders.GetOrderOutput, error)
	EditOrder(ctx context.Context, in *orders.EditOrderInput) (*orders.EditOrderOutput, error)
	TakeOrder(ctx context.Context, in *orders.TakeOrderInput) (*orders.TakeOrderOutput, error)
	GetOrderTimeline(ctx context.Context, in *orders.GetOrderInput) (*orders.GetOrderTimelineOutput, error)
	PendingOrders(in *SubscribeRequest, stream NotificationStream) error
	CookedOrders(in *SubscribeRequest, stream NotificationStream) error
	OrderUpdates(in *SubscribeRequest, stream NotificationStream) error
}

// OrderServiceDesc описывает сервис вручную; сообщения кодируются JSON-кодеком.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrders", Handler: unaryHandler(MethodGetOrders, OrderServiceServer.GetOrders)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "EditOrder", Handler: unaryHandler(MethodEditOrder, OrderServiceServer.EditOrder)},
		{MethodName: "TakeOrder", Handler: unaryHandler(MethodTakeOrder, OrderServiceServer.TakeOrder)},
		{MethodName: "GetOrderTimeline", Handler: unaryHandler(MethodGetOrderTimeline, OrderServiceServer.GetOrderTimeline)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "PendingOrders", Handler: streamHandler(OrderServiceServer.PendingOrders), ServerStreams: true},
		{StreamName: "CookedOrders", Handler: streamHandler(OrderServiceServer.CookedOrders), ServerStreams: true},
		{StreamName: "OrderUpdates", Handler: streamHandler(OrderServiceServer.OrderUpdates), ServerStreams: true},
	},
	Metadata: "fooddelivery/v1/order_service.json",
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(OrderServiceServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamHandler(call func(OrderServiceServer, *SubscribeRequest, NotificationStream) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		in := new(SubscribeRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return call(srv.(OrderServiceServer), in, serverNotificationStream{stream})
	}
}

type serverNotificationStream struct {
	grpc.ServerStream
}

func (s serverNotificationStream) Send(msg *notify.Message) error {
	return s.SendMsg(msg)
}

// OrderServiceClient: клиент сервиса заказов поверх JSON-кодека.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *orders.CreateOrderInput, opts ...grpc.CallOption) (*orders.CreateOrderOutput, error) {
	return invoke[orders.CreateOrderOutput](ctx, c.cc, MethodCreateOrder, in, opts)
}

func (c *OrderServiceClient) GetOrders(ctx context.Context, in *orders.GetOrdersInput, opts ...grpc.CallOption) (*orders.GetOrdersOutput, error) {
	return invoke[orders.GetOrdersOutput](ctx, c.cc, MethodGetOrders, in, opts)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *orders.GetOrderInput, opts ...grpc.CallOption) (*orders.GetOrderOutput, error) {
	return invoke[orders.GetOrderOutput](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *OrderServiceClient) EditOrder(ctx context.Context, in *orders.EditOrderInput, opts ...grpc.CallOption) (*orders.EditOrderOutput, error) {
	return invoke[orders.EditOrderOutput](ctx, c.cc, MethodEditOrder, in, opts)
}

func (c *OrderServiceClient) TakeOrder(ctx context.Context, in *orders.TakeOrderInput, opts ...grpc.CallOption) (*orders.TakeOrderOutput, error) {
	return invoke[orders.TakeOrderOutput](ctx, c.cc, MethodTakeOrder, in, opts)
}

func (c *OrderServiceClient) GetOrderTimeline(ctx context.Context, in *orders.GetOrderInput, opts ...grpc.CallOption) (*orders.GetOrderTimelineOutput, error) {
	return invoke[orders.GetOrderTimelineOutput](ctx, c.cc, MethodGetOrderTimeline, in, opts)
}

func (c *OrderServiceClient) PendingOrders(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (*NotificationClient, error) {
	return c.openStream(ctx, 0, MethodPendingOrders, in, opts)
}

func (c *OrderServiceClient) CookedOrders(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (*NotificationClient, error) {
	return c.openStream(ctx, 1, MethodCookedOrders, in, opts)
}

func (c *OrderServiceClient) OrderUpdates(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (*NotificationClient, error) {
	return c.openStream(ctx, 2, MethodOrderUpdates, in, opts)
}

func (c *OrderServiceClient) openStream(ctx context.Context, idx int, method string, in *SubscribeRequest, opts []grpc.CallOption) (*NotificationClient, error) {
	stream, err := c.cc.NewStream(ctx, &OrderServiceDesc.Streams[idx], method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &NotificationClient{stream: stream}, nil
}

// NotificationClient читает поток уведомлений на стороне клиента.
type NotificationClient struct {
	stream grpc.ClientStream
}

// Recv ждёт следующее уведомление; io.EOF означает штатное завершение потока.
func (n *NotificationClient) Recv() (notify.Message, error) {
	var msg notify.Message
	if err := n.stream.RecvMsg(&msg); err != nil {
		return notify.Message{}, err
	}
	return msg, nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
