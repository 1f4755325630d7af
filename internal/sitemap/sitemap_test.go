package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otago-pg/internal/fetcher"
	"otago-pg/pkg/types"
)

func TestParseJSON(t *testing.T) {
	infos, err := Parse(strings.NewReader(`[
		{"major_url": "https://www.otago.ac.nz/courses/mcom"},
		{"major_url-href": "https://www.otago.ac.nz/courses/msc", "major_name": "MSc"},
		{"major_url": "https://www.otago.ac.nz/courses/mcom/"},
		{"major_url": ""}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []types.MajorInfo{
		{URL: "https://www.otago.ac.nz/courses/mcom"},
		{URL: "https://www.otago.ac.nz/courses/msc", Name: "MSc"},
		{URL: ""},
	}, infos)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitemap_pg.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"major_url":"https://a.test/x"}]`), 0o644))

	infos, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []types.MajorInfo{{URL: "https://a.test/x"}}, infos)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadXMLFollowsIndex(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			_, _ = w.Write([]byte(`<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>` + srv.URL + `/courses.xml</loc></sitemap>
  <sitemap><loc>` + srv.URL + `/broken.xml</loc></sitemap>
</sitemapindex>`))
		case "/courses.xml":
			_, _ = w.Write([]byte(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> https://www.otago.ac.nz/courses/qualifications/mcom </loc></url>
  <url><loc>https://www.otago.ac.nz/news/2026</loc></url>
  <url><loc>https://www.otago.ac.nz/courses/qualifications/msc</loc></url>
  <url><loc>https://www.otago.ac.nz/courses/qualifications/mcom</loc></url>
</urlset>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := fetcher.NewHTTPFetcher(fetcher.Options{})
	require.NoError(t, err)
	loader, err := NewLoader(f, `/courses/qualifications/`, nil)
	require.NoError(t, err)

	infos, err := loader.LoadXML(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []types.MajorInfo{
		{URL: "https://www.otago.ac.nz/courses/qualifications/mcom"},
		{URL: "https://www.otago.ac.nz/courses/qualifications/msc"},
	}, infos)

	_, err = loader.LoadXML(context.Background(), srv.URL+"/missing.xml")
	assert.ErrorContains(t, err, "status 404")
}

func TestNewLoaderRejectsBadPattern(t *testing.T) {
	_, err := NewLoader(nil, "(", nil)
	assert.Error(t, err)
}
