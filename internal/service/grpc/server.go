package grpcsvc

import (
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer собирает gRPC-сервер: метрики, затем аутентификация, сервис заказов и health.
// serverMetrics может быть nil.
func NewServer(svc OrderServiceServer, authn *AuthInterceptor, serverMetrics *promgrpc.ServerMetrics, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	unary := make([]grpc.UnaryServerInterceptor, 0, 2)
	stream := make([]grpc.StreamServerInterceptor, 0, 2)
	if serverMetrics != nil {
		unary = append(unary, serverMetrics.UnaryServerInterceptor())
		stream = append(stream, serverMetrics.StreamServerInterceptor())
	}
	unary = append(unary, authn.Unary())
	stream = append(stream, authn.Stream())

	opts = append(opts,
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	server := grpc.NewServer(opts...)
	RegisterOrderServiceServer(server, svc)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	if serverMetrics != nil {
		serverMetrics.InitializeMetrics(server)
	}
	return server, healthServer
}
