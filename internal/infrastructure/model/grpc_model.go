package model

import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/errors"
)

// PredictMethod is the full gRPC method name served by risk model servers.
// Request and response are google.protobuf.Struct:
//
//	request:  {"target": "probability" | "severity", "features": {name: number}}
//	response: {"value": number, "version": string}
const PredictMethod = "/ubi.risk.v1.RiskModel/Predict"

const (
	TargetProbability = "probability"
	TargetSeverity    = "severity"
)

// GRPCModel is a RiskModel backed by a remote model server.
// The version the server reports wins over the configured label once a
// prediction has been served, so scores carry the model that produced them.
type GRPCModel struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	version string
	served  atomic.Pointer[string]
}

// NewGRPCModel connects to target. version labels scores until the server reports its own.
func NewGRPCModel(target, version string) (*GRPCModel, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", target, err)
	}
	m := NewGRPCModelWithConn(conn, version)
	m.closer = conn.Close
	return m, nil
}

// NewGRPCModelWithConn creates a GRPCModel over an existing connection.
func NewGRPCModelWithConn(conn grpc.ClientConnInterface, version string) *GRPCModel {
	if version == "" {
		version = "remote"
	}
	return &GRPCModel{conn: conn, version: version}
}

func (m *GRPCModel) PredictProbability(ctx context.Context, features models.FeatureVector) (float64, error) {
	return m.predict(ctx, TargetProbability, features)
}

func (m *GRPCModel) PredictSeverity(ctx context.Context, features models.FeatureVector) (float64, error) {
	return m.predict(ctx, TargetSeverity, features)
}

func (m *GRPCModel) Version() string {
	if v := m.served.Load(); v != nil {
		return *v
	}
	return m.version
}

// Close shuts down the gRPC connection.
func (m *GRPCModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

func (m *GRPCModel) predict(ctx context.Context, target string, features models.FeatureVector) (float64, error) {
	req, err := NewPredictRequest(target, features)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "encode predict request")
	}

	resp := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return 0, errors.Wrap(err, errors.CodeInvalidInput, "model rejected features")
		}
		return 0, errors.ErrModelUnavailable(fmt.Errorf("predict %s rpc: %w", target, err))
	}

	v, ok := resp.GetFields()["value"]
	if !ok {
		return 0, errors.ErrModelUnavailable(fmt.Errorf("predict %s: response has no value", target))
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, errors.ErrModelUnavailable(fmt.Errorf("predict %s: value is not a number", target))
	}
	if version := resp.GetFields()["version"].GetStringValue(); version != "" {
		m.served.Store(&version)
	}
	return num.NumberValue, nil
}

// NewPredictRequest builds the request Struct for target.
func NewPredictRequest(target string, features models.FeatureVector) (*structpb.Struct, error) {
	values := features.Values()
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"target":   target,
		"features": fields,
	})
}

// ParsePredictRequest extracts target and feature values from a request Struct.
func ParsePredictRequest(req *structpb.Struct) (string, models.FeatureVector, error) {
	target := req.GetFields()["target"].GetStringValue()
	if target != TargetProbability && target != TargetSeverity {
		return "", models.FeatureVector{}, fmt.Errorf("unknown target %q", target)
	}
	raw := req.GetFields()["features"].GetStructValue()
	if raw == nil {
		return "", models.FeatureVector{}, fmt.Errorf("request has no features")
	}
	values := make(map[string]float64, len(raw.GetFields()))
	for k, v := range raw.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return "", models.FeatureVector{}, fmt.Errorf("feature %q is not a number", k)
		}
		values[k] = n.NumberValue
	}
	return target, models.FeatureVectorFromValues(values), nil
}
