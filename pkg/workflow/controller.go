package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/menta2k/isitai/pkg/client"
	"github.com/menta2k/isitai/pkg/processing"
	"github.com/menta2k/isitai/pkg/types"
)

var (
	// ErrNoImage is returned by Submit when nothing has been uploaded or captured
	ErrNoImage = errors.New("no image to classify")
	// ErrMissingToken is returned by Submit when no API token is configured.
	// Captures are sent regardless and the endpoint's rejection is shown.
	ErrMissingToken = errors.New("API token is not configured")
)

// Snipper requests a screenshot from the privileged side
type Snipper interface {
	OpenSnippingTool(ctx context.Context) types.CaptureOutcome
}

// Config wires a Controller
type Config struct {
	Classifier client.Classifier
	Snipper    Snipper
	Processor  *processing.Processor
	APIToken   string
}

// Controller drives the workflow and runs classifications in the background
type Controller struct {
	mu       sync.Mutex
	state    State
	config   Config
	inflight sync.WaitGroup
	subs     map[int]chan State
	nextSub  int
}

// New creates a controller in the Idle phase
func New(config Config) *Controller {
	if config.Processor == nil {
		config.Processor = processing.NewProcessor()
	}
	return &Controller{
		config: config,
		subs:   make(map[int]chan State),
	}
}

// State returns the current snapshot
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectFile makes an uploaded file the current image. It never classifies;
// the upload path needs an explicit Submit.
func (c *Controller) SelectFile(ctx context.Context, name string, data []byte) error {
	img, err := c.config.Processor.PrepareUpload(name, data)
	if err != nil {
		pslog.Ctx(ctx).Warn("upload rejected", "file", name, "err", err)
		c.dispatch(FileRejected{Reason: err.Error()})
		return err
	}
	pslog.Ctx(ctx).Info("image selected", "file", name, "image_id", img.ID, "size", img.Size)
	c.dispatch(FileSelected{Image: img})
	return nil
}

// Submit classifies the current image. Any pending request is superseded.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Image != nil && c.config.APIToken == "" {
		return ErrMissingToken
	}
	return c.submitLocked(ctx)
}

// Capture asks the privileged side for a screenshot. A successful capture is
// submitted immediately. A failed capture leaves the state untouched apart
// from a notice and is not returned as an error.
func (c *Controller) Capture(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	if c.config.Snipper == nil {
		c.dispatch(CaptureFailed{Reason: "screen capture is unavailable"})
		return nil
	}

	outcome := c.config.Snipper.OpenSnippingTool(ctx)
	img, ok := outcome.Image()
	if !ok {
		log.Warn("screenshot capture failed", "reason", outcome.Reason())
		c.dispatch(CaptureFailed{Reason: outcome.Reason()})
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(CaptureSucceeded{Image: img})
	log.Info("screenshot received", "image_id", img.ID)
	return c.submitLocked(ctx)
}

// Wait blocks until every started classification has delivered its result
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Subscribe returns a channel receiving the latest state after each change.
// Slow readers only see the newest snapshot. Call the returned func to stop.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	c.subs[id] = ch
	ch <- c.state

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Controller) submitLocked(ctx context.Context) error {
	if c.state.Image == nil {
		return ErrNoImage
	}

	c.applyLocked(Submitted{})
	gen := c.state.Generation
	img := *c.state.Image

	requestID := uuid.NewString()
	log := pslog.Ctx(ctx).With("request_id", requestID, "generation", gen, "source", string(img.Source))
	log.Info("classification started", "image_id", img.ID)

	// The request outlives the caller (an HTTP handler, usually)
	bg := pslog.ContextWithLogger(context.WithoutCancel(ctx), log)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		results, err := c.config.Classifier.Classify(bg, img, c.config.APIToken)
		if err != nil {
			log.Error("classification failed", "err", err)
			c.dispatch(ClassifiedError{Generation: gen, Err: err.Error()})
			return
		}
		if top, ok := results.Top(); ok {
			log.Info("classification finished", "label", top.Label, "score", top.Score)
		}
		c.dispatch(ClassifiedOK{Generation: gen, Results: results})
	}()
	return nil
}

func (c *Controller) dispatch(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(e)
}

func (c *Controller) applyLocked(e Event) {
	next := Reduce(c.state, e)
	c.state = next
	for _, ch := range c.subs {
		publish(ch, next)
	}
}

func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
