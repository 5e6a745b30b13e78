package httpclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestPackageLevelVerbs(t *testing.T) {
	srv := newOrigin(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error)
		method string
	}{
		{name: "given Get, then GET is sent", call: Get, method: http.MethodGet},
		{name: "given Post, then POST is sent", call: Post, method: http.MethodPost},
		{name: "given Put, then PUT is sent", call: Put, method: http.MethodPut},
		{name: "given Delete, then DELETE is sent", call: Delete, method: http.MethodDelete},
		{name: "given Options, then OPTIONS is sent", call: Options, method: http.MethodOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.call(ctx, srv.URL+"/echo", WithParams(map[string]string{"q": "go"}))
			require.NoError(t, err)
			require.NotNil(t, resp)

			e := decodeEcho(t, resp)
			assert.Equal(t, tt.method, e.Method)
			assert.Equal(t, "go", e.Query["q"])
		})
	}

	t.Run("given Do with lowercase method, then it is normalized", func(t *testing.T) {
		resp, err := Do(ctx, "post", srv.URL+"/echo", WithForm(map[string]string{"a": "1"}))
		require.NoError(t, err)

		e := decodeEcho(t, resp)
		assert.Equal(t, http.MethodPost, e.Method)
		assert.Equal(t, "a=1", e.Body)
	})

	t.Run("given 404, then response is returned", func(t *testing.T) {
		resp, err := Get(ctx, srv.URL+"/status/404")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, 1, resp.Attempts())
	})
}
