package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureOutcomeIsExactlyOneOf(t *testing.T) {
	img := CapturedImage{ID: "a", Source: SourceCapture, DataURI: "data:image/png;base64,AA=="}

	ok := CaptureSucceeded(img)
	got, present := ok.Image()
	require.True(t, present)
	assert.True(t, ok.OK())
	assert.Equal(t, img, got)
	assert.Empty(t, ok.Reason())

	failed := CaptureFailed("No image in clipboard")
	_, present = failed.Image()
	assert.False(t, present)
	assert.False(t, failed.OK())
	assert.Equal(t, "No image in clipboard", failed.Reason())
}

func TestCaptureOutcomeZeroValueIsFailure(t *testing.T) {
	var zero CaptureOutcome
	assert.False(t, zero.OK())
	assert.Equal(t, "capture failed", zero.Reason())
	assert.Equal(t, "capture failed", CaptureFailed("").Reason())
}

func TestCaptureSucceededCopiesImage(t *testing.T) {
	img := CapturedImage{ID: "a"}
	outcome := CaptureSucceeded(img)
	img.ID = "b"

	got, _ := outcome.Image()
	assert.Equal(t, "a", got.ID)
}

func TestClassificationResultTop(t *testing.T) {
	_, ok := ClassificationResult(nil).Top()
	assert.False(t, ok)

	res := ClassificationResult{{Label: "Fake", Score: 0.91}, {Label: "Real", Score: 0.09}}
	top, ok := res.Top()
	require.True(t, ok)
	assert.Equal(t, "Fake", top.Label)
	assert.True(t, top.IsFake())
	assert.False(t, res[1].IsFake())
}

func TestImageRef(t *testing.T) {
	img := CapturedImage{ID: NewImageID(), Source: SourceUpload, DataURI: "data:image/png;base64,AA=="}
	ref := img.Ref()
	assert.Equal(t, img.ID, ref.ID)
	assert.Equal(t, SourceUpload, ref.Source)
	assert.NotEqual(t, img.ID, NewImageID())
}
