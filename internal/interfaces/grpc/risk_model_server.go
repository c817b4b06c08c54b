// Package grpc serves a RiskModel over gRPC so that scoring replicas can share one model process.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/internal/infrastructure/model"
	"github.com/turtacn/ubi/pkg/logger"
)

// RiskModelServer is the server side of model.PredictMethod.
type RiskModelServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RiskModelServiceDesc describes the ubi.risk.v1.RiskModel service. The payloads are
// google.protobuf.Struct, so no generated code is needed on either side.
var RiskModelServiceDesc = grpc.ServiceDesc{
	ServiceName: "ubi.risk.v1.RiskModel",
	HandlerType: (*RiskModelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ubi/risk/v1/risk_model.proto",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskModelServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: model.PredictMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskModelServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ModelService adapts a service.RiskModel to RiskModelServer.
type ModelService struct {
	model service.RiskModel
	log   logger.Logger
}

// NewRiskModelGRPCServer creates a gRPC server exposing m.
func NewRiskModelGRPCServer(m service.RiskModel, log logger.Logger) *grpc.Server {
	chain := NewInterceptorChain(log.WithComponent("risk_model_grpc"))
	server := grpc.NewServer(chain.ChainUnaryInterceptors())
	server.RegisterService(&RiskModelServiceDesc, &ModelService{model: m, log: log})
	return server
}

// Predict handles one prediction request.
func (s *ModelService) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	target, features, err := model.ParsePredictRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var v float64
	switch target {
	case model.TargetProbability:
		v, err = s.model.PredictProbability(ctx, features)
	default:
		v, err = s.model.PredictSeverity(ctx, features)
	}
	if err != nil {
		return nil, err
	}

	return structpb.NewStruct(map[string]interface{}{
		"value":   v,
		"version": s.model.Version(),
	})
}
