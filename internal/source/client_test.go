package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/platform/config"
	dErrors "scoresync/pkg/domain-errors"
)

func testConfig(baseURL string, pageSize int) config.Source {
	return config.Source{
		BaseURL:      baseURL,
		APIKey:       "key-1",
		PageSize:     pageSize,
		PageTimeout:  2 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		FetchWorkers: 3,
	}
}

func writePage(w http.ResponseWriter, totalPages int, records ...string) {
	raw := make([]json.RawMessage, len(records))
	for i, r := range records {
		raw[i] = json.RawMessage(r)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"records":     raw,
		"total_pages": totalPages,
	})
}

func TestFetchAll_MergesPagesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			writePage(w, 3, `{"n":1}`, `{"n":2}`)
		case "2":
			writePage(w, 3, `{"n":3}`, `{"n":4}`)
		case "3":
			writePage(w, 3, `{"n":5}`)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 2))
	result, err := c.FetchAll(context.Background(), CollectionContacts, "")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Empty(t, result.FailedPages)
	require.Len(t, result.Records, 5)
	for i, raw := range result.Records {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i+1), string(raw))
	}
}

func TestFetchAll_ShortFirstPageStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writePage(w, 1, `{"n":1}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 50))
	result, err := c.FetchAll(context.Background(), CollectionInstitutions, "")
	require.NoError(t, err)

	assert.Len(t, result.Records, 1)
	assert.Equal(t, int32(1), calls.Load(), "a short first page must not trigger further requests")
}

func TestFetchAll_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writePage(w, 1, `{"n":1}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 50))
	result, err := c.FetchAll(context.Background(), CollectionResponses, "")
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestFetchAll_AbandonsExhaustedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "2":
			w.WriteHeader(http.StatusInternalServerError)
		case "1":
			writePage(w, 3, `{"n":1}`, `{"n":2}`)
		default:
			writePage(w, 3, `{"n":5}`)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 2))
	result, err := c.FetchAll(context.Background(), CollectionContacts, "")
	require.NoError(t, err, "a lost page is counted, not fatal")

	assert.Equal(t, []int{2}, result.FailedPages)
	assert.Len(t, result.Records, 3)
}

func TestFetchAll_FirstPageFailureIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 2))
	_, err := c.FetchAll(context.Background(), CollectionInstitutions, "")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeFetch, dErrors.CodeOf(err))
}

func TestAuthorize_SignedBearerWhenSecretConfigured(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		writePage(w, 1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 10)
	cfg.APISecret = "s3cret"
	c := NewHTTPClient(cfg)
	_, err := c.FetchAll(context.Background(), CollectionStaff, "")
	require.NoError(t, err)

	require.NotEmpty(t, authHeader)
	tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
	require.True(t, ok)

	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "key-1", claims.Issuer)
}

func TestAuthorize_APIKeyHeaderWithoutSecret(t *testing.T) {
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		writePage(w, 1)
	}))
	defer srv.Close()

	c := NewHTTPClient(testConfig(srv.URL, 10))
	_, err := c.FetchAll(context.Background(), CollectionStaff, "")
	require.NoError(t, err)
	assert.Equal(t, "key-1", apiKey)
}
