// Package isitai classifies face images as real photographs or AI generated.
//
// The package combines image preparation with a remote or local classifier
// and returns the ranked label/score list the model produced.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/menta2k/isitai"
//	)
//
//	func main() {
//		detector, err := isitai.New(os.Getenv("HF_API_TOKEN"))
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := detector.ClassifyFile(context.Background(), "face.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		top, _ := result.Top()
//		fmt.Printf("%s (%.1f%%)\n", top.Label, top.Score*100)
//	}
//
// The package consists of these components:
//
// 1. Processing (pkg/processing): image decoding, validation and data URI encoding
// 2. Inference (pkg/inference): the hosted classification endpoint client
// 3. Ollama (pkg/ollama): a local vision-model backend with the same contract
// 4. Capture (pkg/capture, pkg/channel): the screenshot bridge and its narrow channel
// 5. Workflow (pkg/workflow, pkg/render): the capture/upload state machine and its view
//
// The desktop application in cmd/isitai wires all of them together.
package isitai

import (
	"context"
	"fmt"

	"github.com/menta2k/isitai/pkg/client"
	"github.com/menta2k/isitai/pkg/inference"
	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
)

// Version of the isitai library
const Version = "1.0.0"

// Detector classifies images with one backend
type Detector struct {
	processor  *processing.Processor
	classifier client.Classifier
	apiToken   string
}

// New creates a detector for the hosted endpoint
func New(apiToken string) (*Detector, error) {
	c, err := inference.NewClient(inference.DefaultEndpoint)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(processing.DefaultConfig(), c, apiToken), nil
}

// NewWithConfig creates a detector with a custom processor configuration and classifier
func NewWithConfig(processingConfig processing.Config, classifier client.Classifier, apiToken string) *Detector {
	return &Detector{
		processor:  processing.NewProcessorWithConfig(processingConfig),
		classifier: classifier,
		apiToken:   apiToken,
	}
}

// ClassifyFile reads and classifies an image file
func (d *Detector) ClassifyFile(ctx context.Context, path string) (types.ClassificationResult, error) {
	img, err := d.processor.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Classify(ctx, img)
}

// ClassifyBytes classifies raw image bytes
func (d *Detector) ClassifyBytes(ctx context.Context, name string, data []byte) (types.ClassificationResult, error) {
	img, err := d.processor.PrepareUpload(name, data)
	if err != nil {
		return nil, err
	}
	return d.Classify(ctx, img)
}

// Classify sends an already prepared image
func (d *Detector) Classify(ctx context.Context, img types.CapturedImage) (types.ClassificationResult, error) {
	result, err := d.classifier.Classify(ctx, img, d.apiToken)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	return result, nil
}

// Processor returns the processor used to prepare images
func (d *Detector) Processor() *processing.Processor {
	return d.processor
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
