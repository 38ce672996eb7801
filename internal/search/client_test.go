package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/ted"
)

func validQuery() ted.SearchQuery {
	return ted.SearchQuery{
		DateStart:      "20240501",
		DateEnd:        "20240531",
		BuyerCountries: []string{"DEU"},
		CPVCodes:       []string{"71541000"},
	}
}

func noticePage(ids ...string) []map[string]any {
	page := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		page = append(page, map[string]any{"publication-number": id})
	}
	return page
}

func TestSearchPagesUntilTotal(t *testing.T) {
	t.Parallel()

	var pagesServed []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		page := int(req["page"].(float64))
		pagesServed = append(pagesServed, page)
		require.Equal(t, "ACTIVE", req["scope"])
		require.Equal(t, "PAGE_NUMBER", req["paginationMode"])

		resp := map[string]any{"total": 3}
		switch page {
		case 1:
			resp["results"] = noticePage("1-2024", "2-2024")
		case 2:
			resp["results"] = noticePage("3-2024")
		default:
			resp["results"] = noticePage()
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, PageSize: 2}, zap.NewNop())
	notices, err := c.Search(context.Background(), validQuery())
	require.NoError(t, err)

	require.Len(t, notices, 3)
	require.LessOrEqual(t, len(notices), 3, "result list never exceeds the upstream total")
	require.Equal(t, []int{1, 2}, pagesServed, "page*limit >= total stops pagination")
	require.Equal(t, "1-2024", notices[0].PublicationNumber())
}

func TestSearchStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		resp := map[string]any{}
		if calls == 1 {
			// No total count in the response; only the empty follow-up page
			// terminates the loop.
			resp["results"] = noticePage("1-2024")
		} else {
			resp["results"] = noticePage()
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, PageSize: 100}, zap.NewNop())
	notices, err := c.Search(context.Background(), validQuery())
	require.NoError(t, err)
	require.Len(t, notices, 1)
	require.Equal(t, 2, calls)
}

func TestSearchToleratesAlternateResultKeys(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"results", "items", "notices"} {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				resp := map[string]any{key: noticePage("9-2024"), "totalCount": 1}
				require.NoError(t, json.NewEncoder(w).Encode(resp))
			}))
			defer srv.Close()

			c := New(Config{Endpoint: srv.URL, PageSize: 100}, zap.NewNop())
			notices, err := c.Search(context.Background(), validQuery())
			require.NoError(t, err)
			require.Len(t, notices, 1)
			require.Equal(t, "9-2024", notices[0].PublicationNumber())
		})
	}
}

func TestSearchNonSuccessStatusIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, PageSize: 100}, zap.NewNop())
	_, err := c.Search(context.Background(), validQuery())

	var searchErr *Error
	require.ErrorAs(t, err, &searchErr)
	require.Equal(t, http.StatusBadGateway, searchErr.StatusCode)
	require.Contains(t, searchErr.Query, "classification-cpv")
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	t.Parallel()

	c := New(Config{Endpoint: "http://unused.test"}, zap.NewNop())
	_, err := c.Search(context.Background(), ted.SearchQuery{
		DateStart:      "20240501",
		DateEnd:        "20240531",
		BuyerCountries: []string{"DEU"},
	})
	require.Error(t, err)
	require.False(t, errors.As(err, new(*Error)), "validation failures are not search errors")
}
