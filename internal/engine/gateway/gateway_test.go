package gateway

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/testutil/fakeregistry"
)

const (
	pkgURL   = "https://esm.sh/react@18.2.0"
	entryURL = "https://esm.sh/v135/@types/react@18.2.0/index.d.ts"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	puts int
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string]string)} }

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Put(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.puts++
	return nil
}

func TestFetchText_MemoizesSuccessfulResults(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddFile(entryURL, "export {};")
	g := New(reg, nil)

	for i := 0; i < 3; i++ {
		got, err := g.FetchText(context.Background(), entryURL)
		require.NoError(t, err)
		assert.Equal(t, "export {};", got)
	}
	assert.Equal(t, 1, reg.Calls(entryURL))
	assert.Equal(t, 1, reg.TotalCalls())
}

func TestFetchText_EmptyResolution(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddResponse(entryURL, &ports.Response{StatusCode: http.StatusInternalServerError, Body: []byte("boom")})
	reg.AddFile("https://esm.sh/empty.d.ts", "")
	g := New(reg, nil)

	cases := []string{entryURL, "https://esm.sh/empty.d.ts", "https://esm.sh/missing.d.ts"}
	for _, url := range cases {
		got, err := g.FetchText(context.Background(), url)
		require.NoError(t, err, url)
		assert.Empty(t, got, url)
	}

	// empty results are not memoized
	_, _ = g.FetchText(context.Background(), entryURL)
	assert.Equal(t, 2, reg.Calls(entryURL))
}

func TestFetchText_TransportFailure(t *testing.T) {
	reg := fakeregistry.New()
	reg.Fail(entryURL, nil)
	g := New(reg, nil)

	got, err := g.FetchText(context.Background(), entryURL)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTransport))
	assert.Empty(t, got)
	assert.Equal(t, 0, g.Memo().Len())
}

func TestFetchDeclarationEntryURL(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddPackage(pkgURL, entryURL)
	reg.AddPackage("https://esm.sh/relative@1.0.0", "/v135/relative@1.0.0/index.d.ts")
	reg.AddFile("https://esm.sh/noheader@1.0.0", "console.log(1)")
	g := New(reg, nil)

	got, err := g.FetchDeclarationEntryURL(context.Background(), pkgURL)
	require.NoError(t, err)
	assert.Equal(t, entryURL, got)

	got, err = g.FetchDeclarationEntryURL(context.Background(), "https://esm.sh/relative@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "https://esm.sh/v135/relative@1.0.0/index.d.ts", got)

	got, err = g.FetchDeclarationEntryURL(context.Background(), "https://esm.sh/noheader@1.0.0")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGateway_ContentAndTypesDoNotCollide(t *testing.T) {
	reg := fakeregistry.New()
	header := http.Header{}
	header.Set("X-TypeScript-Types", entryURL)
	reg.AddResponse(pkgURL, &ports.Response{StatusCode: http.StatusOK, Header: header, Body: []byte("export default React;")})
	g := New(reg, nil)

	typesURL, err := g.FetchDeclarationEntryURL(context.Background(), pkgURL)
	require.NoError(t, err)
	body, err := g.FetchText(context.Background(), pkgURL)
	require.NoError(t, err)

	assert.Equal(t, entryURL, typesURL)
	assert.Equal(t, "export default React;", body)
	assert.Equal(t, 2, reg.Calls(pkgURL))
}

func TestGateway_CustomTypesHeader(t *testing.T) {
	reg := fakeregistry.New()
	header := http.Header{}
	header.Set("X-Declarations", entryURL)
	reg.AddResponse(pkgURL, &ports.Response{StatusCode: http.StatusOK, Header: header})
	g := New(reg, nil, WithTypesHeader("X-Declarations"))

	got, err := g.FetchDeclarationEntryURL(context.Background(), pkgURL)
	require.NoError(t, err)
	assert.Equal(t, entryURL, got)
}

func TestGateway_DurableLayer(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddFile(entryURL, "export {};")
	cache := newMapCache()

	first := New(reg, NewMemo(0), WithDurableCache(cache))
	_, err := first.FetchText(context.Background(), entryURL)
	require.NoError(t, err)
	assert.Equal(t, "export {};", cache.data[ContentKey(entryURL)])

	memo := NewMemo(0)
	second := New(reg, memo, WithDurableCache(cache))
	got, err := second.FetchText(context.Background(), entryURL)
	require.NoError(t, err)
	assert.Equal(t, "export {};", got)
	assert.Equal(t, 1, reg.Calls(entryURL), "durable hit must not reach the transport")

	v, ok := memo.Get(ContentKey(entryURL))
	assert.True(t, ok, "durable hit must be written back to the memo")
	assert.Equal(t, "export {};", v)
}

func TestGateway_SharedMemoAcrossGateways(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddFile(entryURL, "export {};")
	memo := NewMemo(0)

	_, err := New(reg, memo).FetchText(context.Background(), entryURL)
	require.NoError(t, err)
	_, err = New(reg, memo).FetchText(context.Background(), entryURL)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Calls(entryURL))
}

func TestGateway_CollapsesConcurrentLookups(t *testing.T) {
	reg := fakeregistry.New()
	reg.AddFile(entryURL, "export {};")
	reg.SetDelay(50 * time.Millisecond)
	g := New(reg, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := g.FetchText(context.Background(), entryURL)
			assert.NoError(t, err)
			assert.Equal(t, "export {};", got)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, reg.Calls(entryURL))
}

func TestMemo_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemo(2)
	m.Put("a", "1")
	m.Put("b", "2")
	_, _ = m.Get("a")
	m.Put("c", "3")

	_, ok := m.Get("b")
	assert.False(t, ok)
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, m.Len())

	stats := m.Stats()
	assert.Equal(t, 2, stats.Capacity)
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.EqualValues(t, 0, m.Stats().Hits)
}
