package pages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
)

func writeInventory(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBootstrapParsesInventory(t *testing.T) {
	src := NewSource(config.PagesConfig{
		Inventory: writeInventory(t, "path,name\n/pricing,Pricing\n/about us,About\n/,Home\n"),
	}, "https://app.example.com/", false)

	items, err := src.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "pricing", items[0].ID)
	assert.Equal(t, "about_us", items[1].ID)
	assert.Equal(t, "page_3", items[2].ID)

	var p Page
	require.NoError(t, json.Unmarshal(items[0].Data, &p))
	assert.Equal(t, "/pricing", p.Path)
	assert.Equal(t, "https://app.example.com/pricing", p.URL)
	assert.Equal(t, "Pricing", p.Name)
}

func TestBootstrapMissingInventory(t *testing.T) {
	src := NewSource(config.PagesConfig{Inventory: filepath.Join(t.TempDir(), "nope.csv")}, "https://x", false)
	_, err := src.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory")
}

func TestProcessItemRejectsBadPath(t *testing.T) {
	src := NewSource(config.PagesConfig{Inventory: "unused"}, "https://app.example.com", false)

	data, _ := json.Marshal(Page{URL: "https://app.example.compricing", Path: "pricing"})
	_, err := src.ProcessItem(context.Background(), artifact.Item{ID: "pricing", Data: data})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must start with /")
}

func TestProcessItemProbesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pricing" {
			_, _ = w.Write([]byte(`<html><head><title> Pricing Plans </title></head><body></body></html>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src := NewSource(config.PagesConfig{Inventory: "unused", Probe: true}, srv.URL, false)

	data, _ := json.Marshal(Page{URL: srv.URL + "/pricing", Path: "/pricing"})
	out, err := src.ProcessItem(context.Background(), artifact.Item{ID: "pricing", Data: data})
	require.NoError(t, err)

	var p Page
	require.NoError(t, json.Unmarshal(out, &p))
	assert.Equal(t, "Pricing Plans", p.Title)
	assert.Equal(t, http.StatusOK, p.StatusCode)

	// A 404 page is a failed item.
	data, _ = json.Marshal(Page{URL: srv.URL + "/gone", Path: "/gone"})
	_, err = src.ProcessItem(context.Background(), artifact.Item{ID: "gone", Data: data})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestProcessItemDryRunSkipsProbe(t *testing.T) {
	src := NewSource(config.PagesConfig{Inventory: "unused", Probe: true}, "https://app.example.com", true)

	data, _ := json.Marshal(Page{URL: "https://app.example.com/pricing", Path: "/pricing"})
	out, err := src.ProcessItem(context.Background(), artifact.Item{ID: "pricing", Data: data})
	require.NoError(t, err)

	var p Page
	require.NoError(t, json.Unmarshal(out, &p))
	assert.True(t, p.Skipped)
	assert.Zero(t, p.StatusCode)
}
