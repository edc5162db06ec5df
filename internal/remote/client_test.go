package remote

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://tables.example.org"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient(&Config{
		BaseURL:     testBase,
		HTTPClient:  httpClient,
		RetryConfig: &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
	})
}

func TestFetchPath_Success(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBase+MasterPath,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, UserAgent, req.Header.Get("User-Agent"))
			return httpmock.NewStringResponse(http.StatusOK, "name\tpath\n"), nil
		})

	data, err := c.FetchPath(context.Background(), MasterPath)
	require.NoError(t, err)
	assert.Equal(t, "name\tpath\n", string(data))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/missing.txt",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))

	_, err := c.FetchPath(context.Background(), "/missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrRemoteFetch)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetch_ServerErrorIsRetried(t *testing.T) {
	c := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testBase+"/flaky.txt",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	data, err := c.FetchPath(context.Background(), "/flaky.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, 3, calls)
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/down.txt",
		httpmock.NewStringResponder(http.StatusBadGateway, ""))

	_, err := c.FetchPath(context.Background(), "/down.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrRemoteFetch)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultBaseURL+MasterPath, c.URL(MasterPath))
}
