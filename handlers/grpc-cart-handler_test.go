package handlers

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"storefront-service/internal/cart"
	"storefront-service/internal/stores/dbtest"
)

func dialCartServer(t *testing.T, carts *cart.Conf) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(carts)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGetCartDetails(t *testing.T) {
	db := dbtest.Open(t)
	carts, err := cart.NewConf(db)
	require.NoError(t, err)

	user := dbtest.SeedUser(t, db, "grpc@example.com", "Customer")
	cat := dbtest.SeedCategory(t, db, "Kitchen")
	p := dbtest.SeedProduct(t, db, cat.ID, "Mug", "10.50", 5)
	_, err = carts.AddItem(context.Background(), user.ID, p.ID, 2)
	require.NoError(t, err)

	conn := dialCartServer(t, carts)
	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), GetCartDetailsMethod, wrapperspb.UInt64(uint64(user.ID)), out)
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, float64(user.ID), m["user_id"])
	assert.Equal(t, "21.00", m["total_amount"])
	items, ok := m["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, float64(p.ID), item["product_id"])
	assert.Equal(t, float64(2), item["quantity"])
	assert.Equal(t, "10.50", item["price"])
}

func TestGetCartDetailsRequiresUser(t *testing.T) {
	carts, err := cart.NewConf(dbtest.Open(t))
	require.NoError(t, err)
	conn := dialCartServer(t, carts)

	err = conn.Invoke(context.Background(), GetCartDetailsMethod, wrapperspb.UInt64(0), new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCartServiceHealth(t *testing.T) {
	carts, err := cart.NewConf(dbtest.Open(t))
	require.NoError(t, err)
	conn := dialCartServer(t, carts)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: CartServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
