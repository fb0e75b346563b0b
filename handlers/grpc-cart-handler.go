package handlers

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"storefront-service/internal/cart"
	"storefront-service/pkg/logkey"
)

const (
	CartServiceName      = "storefront.cart.v1.CartItemService"
	GetCartDetailsMethod = "/" + CartServiceName + "/GetCartDetails"
	cartServiceProtoFile = "storefront/cart/v1/cart.proto"
	getCartDetailsName   = "GetCartDetails"
)

// CartDetailsServer serves cart contents to internal consumers over gRPC.
type CartDetailsServer interface {
	GetCartDetails(ctx context.Context, userID *wrapperspb.UInt64Value) (*structpb.Struct, error)
}

type cartItemService struct {
	carts *cart.Conf
}

func NewCartItemServiceHandler(carts *cart.Conf) CartDetailsServer {
	return &cartItemService{carts: carts}
}

func (s *cartItemService) GetCartDetails(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	userID := req.GetValue()
	if userID == 0 {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}

	resp, err := s.carts.GetOrCreateCart(ctx, uint(userID))
	if err != nil {
		slog.Error("grpc cart lookup failed", slog.Uint64(logkey.UserID, userID), slog.String(logkey.ERROR, err.Error()))
		return nil, status.Errorf(codes.Internal, "failed to get cart details: %v", err)
	}

	items := make([]any, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, map[string]any{
			"cart_item_id": uint64(it.ID),
			"product_id":   uint64(it.ProductID),
			"product_name": it.ProductName,
			"quantity":     int64(it.Quantity),
			"price":        it.Price.StringFixed(2),
			"subtotal":     it.Subtotal.StringFixed(2),
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		"cart_id":      uint64(resp.ID),
		"user_id":      uint64(resp.UserID),
		"total_amount": resp.TotalAmount.StringFixed(2),
		"items":        items,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode cart details: %v", err)
	}
	return out, nil
}

func getCartDetailsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CartDetailsServer).GetCartDetails(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetCartDetailsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CartDetailsServer).GetCartDetails(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// CartItemServiceDesc describes the cart service using well-known message types, so no
// generated code is needed on either side.
var CartItemServiceDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartDetailsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: getCartDetailsName, Handler: getCartDetailsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: cartServiceProtoFile,
}

// NewGRPCServer builds the internal gRPC server with the cart service and health reporting.
func NewGRPCServer(carts *cart.Conf) (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	s.RegisterService(&CartItemServiceDesc, NewCartItemServiceHandler(carts))

	hs := health.NewServer()
	hs.SetServingStatus(CartServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
