package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/tracker"
)

// Client calls a remote Estimator service.
type Client struct {
	conn  grpc.ClientConnInterface
	close func() error
	token string
}

// Dial creates a client for addr. No network I/O happens until the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create estimator client for %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.close = conn.Close
	return c, nil
}

// NewClient wraps an existing connection. Close is a no-op for such clients.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithToken returns a copy of c that sends token on authenticated calls.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Close closes the underlying connection if Dial created it.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// Estimate computes emissions for a remotely.
func (c *Client) Estimate(ctx context.Context, a domain.Activities) (*tracker.Summary, error) {
	in, err := toStruct(a)
	if err != nil {
		return nil, err
	}
	var out tracker.Summary
	if err := c.invoke(ctx, MethodEstimate, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tips selects tips for em remotely.
func (c *Client) Tips(ctx context.Context, em domain.Emissions) ([]domain.Tip, error) {
	in, err := toStruct(em)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tips []domain.Tip `json:"tips"`
	}
	if err := c.invoke(ctx, MethodTips, in, &out); err != nil {
		return nil, err
	}
	return out.Tips, nil
}

// Week builds a synthetic week for em remotely.
func (c *Client) Week(ctx context.Context, em domain.Emissions) ([]domain.WeeklyDataPoint, error) {
	in, err := toStruct(em)
	if err != nil {
		return nil, err
	}
	var out struct {
		Week []domain.WeeklyDataPoint `json:"week"`
	}
	if err := c.invoke(ctx, MethodWeek, in, &out); err != nil {
		return nil, err
	}
	return out.Week, nil
}

// Profile returns the dashboard of the token's user.
func (c *Client) Profile(ctx context.Context) (*tracker.Dashboard, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	var out tracker.Dashboard
	if err := c.invoke(ctx, MethodProfile, &structpb.Struct{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// invoke calls method and decodes the response into out. Errors are
// converted back to errdefs classes.
func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, out any) error {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp); err != nil {
		return fmt.Errorf("%s: %w", method, errgrpc.ToNative(err))
	}
	data, err := json.Marshal(resp.AsMap())
	if err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}
