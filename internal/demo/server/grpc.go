package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PolicyServiceName: gRPC сервис политики. Сообщения: google.protobuf.Struct,
// поэтому сгенерированный код не нужен.
const PolicyServiceName = "guardian.v1.PolicyService"

const (
	MethodCheckAddress  = "/" + PolicyServiceName + "/CheckAddress"
	MethodGetState      = "/" + PolicyServiceName + "/GetState"
	MethodFlagAddress   = "/" + PolicyServiceName + "/FlagAddress"
	MethodUnflagAddress = "/" + PolicyServiceName + "/UnflagAddress"
)

type PolicyServer interface {
	CheckAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	FlagAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UnflagAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var PolicyServiceDesc = grpc.ServiceDesc{
	ServiceName: PolicyServiceName,
	HandlerType: (*PolicyServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CheckAddress", PolicyServer.CheckAddress),
		unaryMethod("GetState", PolicyServer.GetState),
		unaryMethod("FlagAddress", PolicyServer.FlagAddress),
		unaryMethod("UnflagAddress", PolicyServer.UnflagAddress),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "guardian/v1/policy.proto",
}

func unaryMethod(name string, call func(PolicyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + PolicyServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PolicyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PolicyServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// NewGRPCServer регистрирует сервис политики и стандартный health-сервис.
// validator может быть nil: тогда токены не проверяются.
func NewGRPCServer(panel *service.PanelService, validator auth.TokenValidator, logger *zap.Logger) *grpc.Server {
	var opts []grpc.ServerOption
	if validator != nil {
		opts = append(opts, grpc.UnaryInterceptor(auth.UnaryAuthInterceptor(validator, logger)))
	}
	srv := grpc.NewServer(opts...)

	srv.RegisterService(&PolicyServiceDesc, &policyGRPC{panel: panel, logger: logger.Named("grpc")})

	hs := health.NewServer()
	hs.SetServingStatus(PolicyServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

type policyGRPC struct {
	panel  *service.PanelService
	logger *zap.Logger
}

func (s *policyGRPC) CheckAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.panel.Check(ctx, field(req, "address"))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(res)
}

func (s *policyGRPC) GetState(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.panel.State()
	out, err := toStruct(st)
	if err != nil {
		return nil, err
	}
	out.Fields["remaining"] = structpb.NewNumberValue(float64(st.Remaining()))
	return out, nil
}

func (s *policyGRPC) FlagAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	addr, reason := field(req, "address"), field(req, "reason")
	if err := s.panel.Flag(ctx, addr, reason); err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"address": addr, "reason": reason})
}

func (s *policyGRPC) UnflagAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	addr := field(req, "address")
	if err := s.panel.Unflag(ctx, addr); err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"address": addr})
}

func (s *policyGRPC) toStatus(err error) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return status.Error(codes.InvalidArgument, vErr.Message)
	case errors.Is(err, domain.ErrDuplicateFlag):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrNotFlagged):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrNotGuardian):
		return status.Error(codes.PermissionDenied, domain.ErrNotGuardian.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		s.logger.Error("grpc call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func field(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

// toStruct переводит JSON-представление значения в Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return structpb.NewStruct(m)
}

// PolicyClient: тонкий клиент к PolicyService поверх любого соединения.
type PolicyClient struct {
	cc grpc.ClientConnInterface
}

func NewPolicyClient(cc grpc.ClientConnInterface) *PolicyClient {
	return &PolicyClient{cc: cc}
}

func (c *PolicyClient) call(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PolicyClient) CheckAddress(ctx context.Context, addr string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodCheckAddress, map[string]any{"address": addr}, opts...)
}

func (c *PolicyClient) GetState(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodGetState, map[string]any{}, opts...)
}

func (c *PolicyClient) FlagAddress(ctx context.Context, addr, reason string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodFlagAddress, map[string]any{"address": addr, "reason": reason}, opts...)
}

func (c *PolicyClient) UnflagAddress(ctx context.Context, addr string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodUnflagAddress, map[string]any{"address": addr}, opts...)
}
