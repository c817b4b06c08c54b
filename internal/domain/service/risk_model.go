package service

import (
	"context"

	"github.com/turtacn/ubi/internal/domain/models"
)

//go:generate mockery --name RiskModel --output mocks --outpkg mocks
// RiskModel is a trained claim model consumed through two pure predictions.
// RiskModel 定义了风险模型的预测接口。
type RiskModel interface {
	// PredictProbability returns the claim probability in [0, 1].
	PredictProbability(ctx context.Context, features models.FeatureVector) (float64, error)

	// PredictSeverity returns the expected claim cost, in currency units, given a claim occurs.
	PredictSeverity(ctx context.Context, features models.FeatureVector) (float64, error)

	// Version identifies the model for audit trails.
	Version() string
}
