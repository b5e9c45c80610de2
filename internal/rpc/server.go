// Package rpc exposes the estimator over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ecotrace.v1.Estimator"

// Method names of the Estimator service.
const (
	MethodEstimate = "Estimate"
	MethodTips     = "Tips"
	MethodWeek     = "Week"
	MethodProfile  = "Profile"
)

// EstimatorServer is the server API of the Estimator service.
type EstimatorServer interface {
	Estimate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Tips(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Week(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Profile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(EstimatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EstimatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(EstimatorServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the Estimator service for grpc.Server.RegisterService.
// Requests and replies are google.protobuf.Struct, so there is no generated
// file descriptor to point Metadata at; reflection lists the service name only.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler(MethodEstimate, EstimatorServer.Estimate),
		methodHandler(MethodTips, EstimatorServer.Tips),
		methodHandler(MethodWeek, EstimatorServer.Week),
		methodHandler(MethodProfile, EstimatorServer.Profile),
	},
	Streams: []grpc.StreamDesc{},
}

// Server implements EstimatorServer on top of the tracker service.
type Server struct {
	svc    *tracker.Service
	repo   store.Repository
	tokens *identity.TokenIssuer
}

var _ EstimatorServer = (*Server)(nil)

// NewServer creates an Estimator server.
func NewServer(svc *tracker.Service, repo store.Repository, tokens *identity.TokenIssuer) *Server {
	return &Server{svc: svc, repo: repo, tokens: tokens}
}

// NewGRPCServer returns a grpc.Server with the Estimator, health and
// reflection services registered.
func NewGRPCServer(srv EstimatorServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(errorInterceptor)}, opts...)
	s := grpc.NewServer(opts...)
	s.RegisterService(&ServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}

// errorInterceptor logs failed calls and converts errdefs classes to gRPC
// status codes.
func errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		level := slog.LevelWarn
		if !errdefs.IsInvalidArgument(err) && !errdefs.IsUnauthorized(err) && !errdefs.IsNotFound(err) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "gRPC call failed", "method", info.FullMethod, "error", err, "duration", time.Since(start))
		return nil, errgrpc.ToGRPC(err)
	}
	slog.Debug("gRPC call", "method", info.FullMethod, "duration", time.Since(start))
	return resp, nil
}

// Estimate computes emissions for the activities in req.
func (s *Server) Estimate(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := domain.ActivitiesFromValues(req.AsMap())
	if err != nil {
		return nil, err
	}
	return toStruct(s.svc.Estimate("grpc", a).Summary())
}

// Tips selects tips for the emissions in req.
func (s *Server) Tips(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	em, err := emissionsFromStruct(req)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"tips": s.svc.Tips(em)})
}

// Week builds a synthetic week for the emissions in req.
func (s *Server) Week(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	em, err := emissionsFromStruct(req)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"week": s.svc.Week(em)})
}

// Profile returns the dashboard of the caller identified by the bearer
// token in the authorization metadata.
func (s *Server) Profile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.svc.Dashboard(ctx, "grpc", userID)
	if err != nil {
		return nil, err
	}
	return toStruct(d)
}

func (s *Server) authenticate(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", fmt.Errorf("tokens are not configured: %w", errdefs.ErrUnauthenticated)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", fmt.Errorf("missing authorization metadata: %w", errdefs.ErrUnauthenticated)
	}
	raw, ok := identity.BearerToken(values[0])
	if !ok {
		return "", fmt.Errorf("authorization is not a bearer token: %w", errdefs.ErrUnauthenticated)
	}
	userID, err := s.tokens.Parse(raw)
	if err != nil {
		return "", err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("token subject %s no longer exists: %w", userID, errdefs.ErrUnauthenticated)
	}
	return userID, nil
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct into v, rejecting unknown fields.
func fromStruct(st *structpb.Struct, v any) error {
	data, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("decode request: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return nil
}

func emissionsFromStruct(st *structpb.Struct) (domain.Emissions, error) {
	var em domain.Emissions
	err := fromStruct(st, &em)
	return em, err
}
