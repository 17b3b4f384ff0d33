package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

// MethodRoles: какие роли допускаются к методу. Метод без записи доступен любому
// аутентифицированному пользователю.
var MethodRoles = map[string][]domain.Role{
	MethodCreateOrder:   {domain.RoleClient},
	MethodTakeOrder:     {domain.RoleDelivery},
	MethodPendingOrders: {domain.RoleOwner},
	MethodCookedOrders:  {domain.RoleDelivery},
}

// AuthInterceptor аутентифицирует вызовы по метаданным x-jwt и проверяет роль.
type AuthInterceptor struct {
	authenticator domain.Authenticator
	roles         map[string][]domain.Role
	logger        *log.Entry
}

// NewAuthInterceptor создаёт интерсептор с таблицей ролей MethodRoles.
func NewAuthInterceptor(authenticator domain.Authenticator, logger *log.Entry) *AuthInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc-auth")
	}
	return &AuthInterceptor{
		authenticator: authenticator,
		roles:         MethodRoles,
		logger:        logger,
	}
}

// Unary возвращает унарный интерсептор.
func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.guarded(info.FullMethod) {
			return handler(ctx, req)
		}
		user, err := a.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(auth.WithUser(ctx, user), req)
	}
}

// Stream возвращает потоковый интерсептор.
func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !a.guarded(info.FullMethod) {
			return handler(srv, ss)
		}
		user, err := a.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &userStream{ServerStream: ss, ctx: auth.WithUser(ss.Context(), user)})
	}
}

// guarded пропускает служебные сервисы (health, reflection) без аутентификации.
func (a *AuthInterceptor) guarded(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+ServiceName+"/")
}

func (a *AuthInterceptor) authorize(ctx context.Context, fullMethod string) (domain.User, error) {
	token := tokenFromMetadata(ctx)
	if token == "" {
		return domain.User{}, status.Error(codes.Unauthenticated, "missing "+auth.HeaderName+" metadata")
	}

	user, err := a.authenticator.Authenticate(ctx, token)
	if err != nil {
		if auth.IsUnauthenticated(err) {
			a.logger.WithError(err).WithField("method", fullMethod).Debug("rejected credentials")
			return domain.User{}, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		a.logger.WithError(err).WithField("method", fullMethod).Error("authentication failed")
		return domain.User{}, status.Error(codes.Internal, "authentication failed")
	}

	if !auth.HasRole(user, a.roles[fullMethod]...) {
		return domain.User{}, status.Errorf(codes.PermissionDenied, "role %s cannot call %s", user.Role, fullMethod)
	}
	return user, nil
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(auth.HeaderName)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type userStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *userStream) Context() context.Context {
	return s.ctx
}
