package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/isitai/pkg/types"
)

var testImage = types.CapturedImage{ID: "img-1", Source: types.SourceUpload, DataURI: "data:image/png;base64,iVBORw0KGgo="}

func TestClassifySendsContract(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf_secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, map[string]any{"inputs": testImage.DataURI}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"label":"Fake","score":0.91},{"label":"Real","score":0.09}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), testImage, "hf_secret")
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationResult{{Label: "Fake", Score: 0.91}, {Label: "Real", Score: 0.09}}, res)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClassifyPreservesResponseOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"real","score":0.2},{"label":"fake","score":0.8}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), testImage, "t")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "real", res[0].Label)
}

func TestClassifyNonSuccessCarriesStatusAndBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Endpoint is scaled to zero"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), testImage, "t")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, `{"error":"Endpoint is scaled to zero"}`, apiErr.Body)
	assert.Equal(t, `API Error (503): {"error":"Endpoint is scaled to zero"}`, err.Error())
	// no retry
	assert.EqualValues(t, 1, calls.Load())
}

func TestClassifyMalformedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"fake"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), testImage, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestClassifyMissingFieldsDecodeToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"fake"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), testImage, "t")
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationResult{{}}, res)
}

func TestClassifyTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), testImage, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request")
}

func TestClassifyTimeoutOption(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), testImage, "t")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, c.Endpoint())

	_, err = NewClient("ftp://example.com")
	assert.Error(t, err)
}
