package scrape

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendmatch/leadgen-cli/pkg/jina"
)

type fakeJina struct {
	resp *jina.ReadResponse
	err  error
}

func (f *fakeJina) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return f.resp, f.err
}

func (f *fakeJina) Search(_ context.Context, _ string) (*jina.SearchResponse, error) {
	return nil, eris.New("not implemented")
}

func goodResponse() *jina.ReadResponse {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			URL:     "https://example.com",
			Title:   "Example",
			Content: strings.Repeat("real page content ", 20),
		},
	}
}

func TestJinaAdapter_Success(t *testing.T) {
	adapter := NewJinaAdapter(&fakeJina{resp: goodResponse()})

	res, err := adapter.Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "jina", res.Source)
	assert.Equal(t, "Example", res.Page.Title)
}

func TestJinaAdapter_ShortContentNeedsFallback(t *testing.T) {
	resp := goodResponse()
	resp.Data.Content = "tiny"
	adapter := NewJinaAdapter(&fakeJina{resp: resp})

	_, err := adapter.Scrape(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestJinaAdapter_ChallengePageNeedsFallback(t *testing.T) {
	resp := goodResponse()
	resp.Data.Content = "Just a moment... checking your browser before accessing the site"
	adapter := NewJinaAdapter(&fakeJina{resp: resp})

	_, err := adapter.Scrape(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestJinaAdapter_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	adapter := NewJinaAdapter(&fakeJina{err: eris.New("upstream down")})

	for i := 0; i < 3; i++ {
		_, err := adapter.Scrape(context.Background(), "https://example.com")
		assert.Error(t, err)
	}
	assert.False(t, adapter.Supports("https://example.com"))
}

func TestNeedsFallback_NilAndErrorCodes(t *testing.T) {
	assert.True(t, needsFallback(nil))

	resp := goodResponse()
	resp.Code = 451
	assert.True(t, needsFallback(resp))

	assert.False(t, needsFallback(goodResponse()))
}
