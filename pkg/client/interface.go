package client

import (
	"context"

	"github.com/menta2k/isitai/pkg/types"
)

// Classifier sends one image to a model and returns its ranked predictions.
// Each call issues exactly one request; concurrent calls are independent.
type Classifier interface {
	Classify(ctx context.Context, img types.CapturedImage, apiToken string) (types.ClassificationResult, error)
}
