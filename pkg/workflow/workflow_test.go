package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/isitai/pkg/types"
)

// gatedClassifier blocks each call until the test releases it by image name
type gatedClassifier struct {
	mu      sync.Mutex
	gates   map[string]chan classifyReply
	calls   []string
	tokens  []string
	started chan string
}

type classifyReply struct {
	results types.ClassificationResult
	err     error
}

func newGatedClassifier() *gatedClassifier {
	return &gatedClassifier{
		gates:   make(map[string]chan classifyReply),
		started: make(chan string, 16),
	}
}

func (g *gatedClassifier) gate(name string) chan classifyReply {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[name]
	if !ok {
		ch = make(chan classifyReply, 1)
		g.gates[name] = ch
	}
	return ch
}

func (g *gatedClassifier) Classify(_ context.Context, img types.CapturedImage, token string) (types.ClassificationResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, img.Name)
	g.tokens = append(g.tokens, token)
	g.mu.Unlock()

	g.started <- img.Name
	reply := <-g.gate(img.Name)
	return reply.results, reply.err
}

func (g *gatedClassifier) release(name string, results types.ClassificationResult, err error) {
	g.gate(name) <- classifyReply{results: results, err: err}
}

func (g *gatedClassifier) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type stubSnipper struct {
	outcome types.CaptureOutcome
	calls   int
}

func (s *stubSnipper) OpenSnippingTool(context.Context) types.CaptureOutcome {
	s.calls++
	return s.outcome
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{0, 0, 255, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func waitStarted(t *testing.T, g *gatedClassifier, want string) {
	t.Helper()
	select {
	case got := <-g.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("classification of %s never started", want)
	}
}

var (
	fakeWins = types.ClassificationResult{{Label: "Fake", Score: 0.91}, {Label: "Real", Score: 0.09}}
	realWins = types.ClassificationResult{{Label: "real", Score: 0.8}, {Label: "fake", Score: 0.2}}
)

func TestUploadRequiresExplicitSubmit(t *testing.T) {
	g := newGatedClassifier()
	c := New(Config{Classifier: g, APIToken: "tok"})
	ctx := context.Background()

	require.NoError(t, c.SelectFile(ctx, "face.png", testPNG(t)))
	assert.Equal(t, ImageReady, c.State().Phase)
	assert.Zero(t, g.callCount())

	require.NoError(t, c.Submit(ctx))
	assert.Equal(t, RequestPending, c.State().Phase)
	waitStarted(t, g, "face.png")

	g.release("face.png", fakeWins, nil)
	c.Wait()

	s := c.State()
	assert.Equal(t, RequestSucceeded, s.Phase)
	assert.Equal(t, fakeWins, s.Results)
	assert.Equal(t, types.SourceUpload, s.Trigger)
	assert.Equal(t, []string{"tok"}, g.tokens)
}

func TestCaptureSubmitsAutomatically(t *testing.T) {
	g := newGatedClassifier()
	snip := &stubSnipper{outcome: types.CaptureSucceeded(types.CapturedImage{
		ID: "cap-1", Name: "screenshot", Source: types.SourceCapture, DataURI: "data:image/png;base64,AA==",
	})}
	c := New(Config{Classifier: g, Snipper: snip, APIToken: "tok"})

	require.NoError(t, c.Capture(context.Background()))
	waitStarted(t, g, "screenshot")
	assert.Equal(t, RequestPending, c.State().Phase)
	assert.Equal(t, types.SourceCapture, c.State().Trigger)

	g.release("screenshot", realWins, nil)
	c.Wait()
	assert.Equal(t, RequestSucceeded, c.State().Phase)
	assert.Equal(t, types.ImageRef{ID: "cap-1", Source: types.SourceCapture}, c.State().ResultFor)
	assert.Equal(t, 1, g.callCount())
}

// The capture path does not check the token; the endpoint's answer is shown.
func TestCaptureWithoutTokenStillClassifies(t *testing.T) {
	g := newGatedClassifier()
	snip := &stubSnipper{outcome: types.CaptureSucceeded(types.CapturedImage{
		ID: "cap-2", Name: "screenshot", Source: types.SourceCapture, DataURI: "data:image/png;base64,AA==",
	})}
	c := New(Config{Classifier: g, Snipper: snip})

	require.NoError(t, c.Capture(context.Background()))
	waitStarted(t, g, "screenshot")
	g.release("screenshot", nil, errors.New("API Error (401): unauthorized"))
	c.Wait()

	s := c.State()
	assert.Equal(t, RequestFailed, s.Phase)
	assert.Equal(t, "API Error (401): unauthorized", s.Err)
	assert.Equal(t, []string{""}, g.tokens)
}

func TestCaptureFailureNeverClassifies(t *testing.T) {
	g := newGatedClassifier()
	snip := &stubSnipper{outcome: types.CaptureFailed("No image in clipboard")}
	c := New(Config{Classifier: g, Snipper: snip, APIToken: "tok"})
	ctx := context.Background()

	require.NoError(t, c.SelectFile(ctx, "face.png", testPNG(t)))
	before := c.State()

	require.NoError(t, c.Capture(ctx))
	c.Wait()

	s := c.State()
	assert.Zero(t, g.callCount())
	assert.Equal(t, "No image in clipboard", s.Notice)
	assert.Empty(t, s.Err)
	assert.Equal(t, before.Phase, s.Phase)
	assert.Equal(t, before.Image, s.Image)
	assert.Equal(t, before.Generation, s.Generation)
}

func TestSubmitGuards(t *testing.T) {
	g := newGatedClassifier()
	ctx := context.Background()

	c := New(Config{Classifier: g, APIToken: "tok"})
	assert.ErrorIs(t, c.Submit(ctx), ErrNoImage)

	c = New(Config{Classifier: g})
	require.NoError(t, c.SelectFile(ctx, "face.png", testPNG(t)))
	assert.ErrorIs(t, c.Submit(ctx), ErrMissingToken)
	assert.Equal(t, ImageReady, c.State().Phase)
	assert.Zero(t, g.callCount())
}

func TestRejectedUploadKeepsState(t *testing.T) {
	c := New(Config{Classifier: newGatedClassifier(), APIToken: "tok"})
	err := c.SelectFile(context.Background(), "notes.txt", []byte("hello"))
	require.Error(t, err)

	s := c.State()
	assert.Equal(t, Idle, s.Phase)
	assert.Nil(t, s.Image)
	assert.NotEmpty(t, s.Notice)
}

func TestClassificationErrorIsVerbatim(t *testing.T) {
	g := newGatedClassifier()
	c := New(Config{Classifier: g, APIToken: "tok"})
	ctx := context.Background()

	require.NoError(t, c.SelectFile(ctx, "face.png", testPNG(t)))
	require.NoError(t, c.Submit(ctx))
	waitStarted(t, g, "face.png")
	g.release("face.png", nil, errors.New(`API Error (503): {"error":"Model is loading"}`))
	c.Wait()

	s := c.State()
	assert.Equal(t, RequestFailed, s.Phase)
	assert.Equal(t, `API Error (503): {"error":"Model is loading"}`, s.Err)
	assert.Nil(t, s.Results)
}

// A request started for an older image must not overwrite the result of a
// newer request, whatever order the two complete in.
func TestStaleResultIsDiscarded(t *testing.T) {
	g := newGatedClassifier()
	c := New(Config{Classifier: g, APIToken: "tok"})
	ctx := context.Background()

	require.NoError(t, c.SelectFile(ctx, "first.png", testPNG(t)))
	require.NoError(t, c.Submit(ctx))
	waitStarted(t, g, "first.png")

	require.NoError(t, c.SelectFile(ctx, "second.png", testPNG(t)))
	require.NoError(t, c.Submit(ctx))
	waitStarted(t, g, "second.png")

	// newer request completes first, the older one arrives late
	g.release("second.png", realWins, nil)
	g.release("first.png", fakeWins, nil)
	c.Wait()

	s := c.State()
	assert.Equal(t, RequestSucceeded, s.Phase)
	assert.Equal(t, realWins, s.Results)
	assert.Equal(t, "second.png", s.Image.Name)
}

func TestSelectionWhilePendingSupersedes(t *testing.T) {
	g := newGatedClassifier()
	c := New(Config{Classifier: g, APIToken: "tok"})
	ctx := context.Background()

	require.NoError(t, c.SelectFile(ctx, "first.png", testPNG(t)))
	require.NoError(t, c.Submit(ctx))
	waitStarted(t, g, "first.png")

	require.NoError(t, c.SelectFile(ctx, "second.png", testPNG(t)))
	assert.Equal(t, ImageReady, c.State().Phase)

	g.release("first.png", fakeWins, nil)
	c.Wait()

	s := c.State()
	assert.Equal(t, ImageReady, s.Phase)
	assert.Nil(t, s.Results)
	assert.Equal(t, "second.png", s.Image.Name)
}

// Without the generation guard the late result would win; the reducer shows
// the guard on its own.
func TestReduceIgnoresOldGeneration(t *testing.T) {
	img := types.CapturedImage{Name: "a.png", Source: types.SourceUpload}
	s := Reduce(State{}, FileSelected{Image: img})
	s = Reduce(s, Submitted{})
	first := s.Generation

	s = Reduce(s, Submitted{})
	second := s.Generation
	require.NotEqual(t, first, second)

	s = Reduce(s, ClassifiedOK{Generation: second, Results: realWins})
	s = Reduce(s, ClassifiedOK{Generation: first, Results: fakeWins})
	assert.Equal(t, realWins, s.Results)

	s = Reduce(s, ClassifiedError{Generation: first, Err: "late"})
	assert.Equal(t, RequestSucceeded, s.Phase)
	assert.Empty(t, s.Err)
}

func TestReduceKeepsResultReference(t *testing.T) {
	img := types.CapturedImage{ID: "a", Name: "a.png", Source: types.SourceUpload, DataURI: "data:image/png;base64,AA=="}
	s := Reduce(State{}, FileSelected{Image: img})
	assert.Zero(t, s.ResultFor)

	s = Reduce(s, Submitted{})
	assert.Equal(t, img.Ref(), s.ResultFor)

	ok := Reduce(s, ClassifiedOK{Generation: s.Generation, Results: realWins})
	assert.Equal(t, img.Ref(), ok.ResultFor)

	failed := Reduce(s, ClassifiedError{Generation: s.Generation, Err: "boom"})
	assert.Equal(t, img.Ref(), failed.ResultFor)

	next := Reduce(ok, FileSelected{Image: types.CapturedImage{ID: "b", Source: types.SourceUpload}})
	assert.Zero(t, next.ResultFor, "a new image drops the old reference")
}

func TestReduceTransitions(t *testing.T) {
	img := types.CapturedImage{Name: "a.png", Source: types.SourceUpload}

	s := Reduce(State{}, Submitted{})
	assert.Equal(t, Idle, s.Phase, "submit without image is a no-op")

	s = Reduce(s, FileSelected{Image: img})
	assert.Equal(t, ImageReady, s.Phase)

	s = Reduce(s, Submitted{})
	s = Reduce(s, ClassifiedOK{Generation: s.Generation, Results: fakeWins})
	assert.Equal(t, RequestSucceeded, s.Phase)

	s = Reduce(s, FileSelected{Image: img})
	assert.Equal(t, ImageReady, s.Phase)
	assert.Nil(t, s.Results, "new image clears prior result")

	s = Reduce(s, CaptureFailed{Reason: "No image in clipboard"})
	assert.Equal(t, ImageReady, s.Phase)
	assert.Equal(t, "No image in clipboard", s.Notice)

	s = Reduce(s, Submitted{})
	assert.Empty(t, s.Notice, "submit clears notice")
	assert.Equal(t, "request_pending", s.Phase.String())
}

func TestSubscribeDeliversLatest(t *testing.T) {
	g := newGatedClassifier()
	c := New(Config{Classifier: g, APIToken: "tok"})
	updates, stop := c.Subscribe()
	defer stop()

	first := <-updates
	assert.Equal(t, Idle, first.Phase)

	require.NoError(t, c.SelectFile(context.Background(), "face.png", testPNG(t)))
	select {
	case s := <-updates:
		assert.Equal(t, ImageReady, s.Phase)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	stop()
	_, open := <-updates
	assert.False(t, open)
}
