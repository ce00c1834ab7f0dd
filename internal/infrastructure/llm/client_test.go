package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerwatch/internal/config"
	"offerwatch/internal/domain"
)

func testClient(t *testing.T, endpoint string, keys ...string) *Client {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{"key-a"}
	}
	return NewClient(config.LLMConfig{
		Endpoint:       endpoint,
		Model:          "test-model",
		APIKeys:        keys,
		ExtractTimeout: 5 * time.Second,
		JudgeTimeout:   5 * time.Second,
		EvalTimeout:    5 * time.Second,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}, nil)
}

func chatReply(content string) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	raw, _ := json.Marshal(reply)
	return string(raw)
}

func TestJudgeSimilar_ParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-a", r.Header.Get("Authorization"))
		fmt.Fprint(w, chatReply(`{"similar": true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	same, err := c.JudgeSimilar(context.Background(), domain.Offer{}, domain.Offer{})
	require.NoError(t, err)
	assert.True(t, same)
}

func TestJudgeSimilar_MalformedVerdict_RetriedUntilExhausted(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, chatReply(`sure, they look alike to me`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.JudgeSimilar(context.Background(), domain.Offer{}, domain.Offer{})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "malformed similarity verdict")
	assert.Equal(t, 3, attempts, "a garbage reply is retried like a transport failure")
}

func TestJudgeSimilar_GarbageThenValid_SucceedsOnRetry(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			fmt.Fprint(w, chatReply(`sorry, I cannot decide`))
			return
		}
		fmt.Fprint(w, chatReply(`{"similar": true}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	same, err := c.JudgeSimilar(context.Background(), domain.Offer{}, domain.Offer{})
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 2, attempts)
}

func TestExtractOffers_GarbageThenValid_SucceedsOnRetry(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			fmt.Fprint(w, chatReply(`here are the offers you asked for`))
			return
		}
		fmt.Fprint(w, chatReply(`[{"original_name": "alpha", "cpu": "i5", "ram": "16GB", "storage": "256GB", "stock": "in_stock"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	res, err := c.ExtractOffers(context.Background(), "some page text", "")
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, "alpha", res.Offers[0].Name)
	assert.Equal(t, 2, attempts)
}

func TestChat_RetriesThenExhausts(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.JudgeSimilar(context.Background(), domain.Offer{}, domain.Offer{})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, attempts, "maxRetries=2 means 3 attempts")
}

func TestChat_RateLimited_RotatesCredential(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		if len(seen) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatReply(`{"similar": false}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "key-a", "key-b")
	same, err := c.JudgeSimilar(context.Background(), domain.Offer{}, domain.Offer{})
	require.NoError(t, err)
	assert.False(t, same)

	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1], "a 429 must rotate to the alternate credential")
}

func TestExtractOffers_ParsesAndSorts(t *testing.T) {
	payload := `[
		{"original_name": "zeta", "cost_effective_name": "z", "cpu": "i7", "ram": "32GB", "storage": "1TB", "stock": "in_stock", "price": "$20/mo"},
		{"original_name": "alpha", "cost_effective_name": "a", "cpu": "i5", "ram": "16GB", "storage": "256GB", "stock": "sold out", "price": "$10/mo"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("```json\n"+payload+"\n```"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	res, err := c.ExtractOffers(context.Background(), "some page text", "")
	require.NoError(t, err)
	require.Len(t, res.Offers, 2)

	assert.Equal(t, "alpha", res.Offers[0].Name, "offers sorted deterministically")
	assert.Equal(t, domain.StockOut, res.Offers[0].Stock, "free-text stock mapped to the closed set")
	assert.Equal(t, domain.StockIn, res.Offers[1].Stock)
}

func TestExtractOffers_SuggestedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply(`{"suggested_url": "https://example.com/servers"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	res, err := c.ExtractOffers(context.Background(), "some page text", "")
	require.NoError(t, err)
	assert.Empty(t, res.Offers)
	assert.Equal(t, "https://example.com/servers", res.SuggestedURL)
}

func TestExtractOffers_EmptyContent_NoCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty content")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	res, err := c.ExtractOffers(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Empty(t, res.Offers)
}

func TestPickKey(t *testing.T) {
	c := testClient(t, "http://unused", "key-a", "key-b")
	for i := 0; i < 20; i++ {
		assert.Equal(t, "key-b", c.pickKey("key-a"), "the only alternate credential must be picked")
	}

	dup := testClient(t, "http://unused", "key-a", "key-a")
	assert.Equal(t, "key-a", dup.pickKey("key-a"), "a pool of duplicates falls back to the excluded key")

	empty := testClient(t, "http://unused")
	empty.keys = nil
	assert.Empty(t, empty.pickKey(""))
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`[{"a":1}]`, `[{"a":1}]`},
		{"Sure! Here you go:\n```json\n[1,2]\n```", "[1,2]"},
		{`prefix {"similar": true} suffix`, `{"similar": true}`},
		{"the array [1] beats the object {2}", "[1]"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractJSON(tc.in))
	}
}

func TestParseStock(t *testing.T) {
	assert.Equal(t, domain.StockIn, parseStock("In Stock"))
	assert.Equal(t, domain.StockIn, parseStock("有货"))
	assert.Equal(t, domain.StockOut, parseStock("Sold Out"))
	assert.Equal(t, domain.StockOut, parseStock("out_of_stock"))
	assert.Equal(t, domain.StockUnknown, parseStock("call us"))
	assert.Equal(t, domain.StockUnknown, parseStock(""))
}
