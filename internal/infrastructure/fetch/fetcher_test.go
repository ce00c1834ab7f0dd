package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>Offers</title><style>body { color: red }</style></head>
<body>
<script>console.log("tracking")</script>
<h1>Dedicated servers</h1>
<p>Intel Core i5-6600T, 16GB DDR4, 256GB NVMe — $77.57/year</p>
<a href="/order/42">Order Now</a>
<a href="#top">Back to top</a>
</body></html>`

func TestFetch_TrimsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "offerwatch")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 5*time.Second)
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, text, "Dedicated servers")
	assert.Contains(t, text, "$77.57/year")
	assert.NotContains(t, text, "console.log", "scripts must be stripped")
	assert.NotContains(t, text, "color: red", "styles must be stripped")
}

func TestFetch_KeepsOrderLinkTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 5*time.Second)
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, text, "Order Now [/order/42]", "href targets survive the text conversion")
	assert.NotContains(t, text, "[#top]", "fragment anchors are not inlined")
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
