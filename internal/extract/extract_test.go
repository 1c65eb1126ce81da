package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Second}
}

func TestHTMLExtractorFirstMatchingSelectorWins(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<div class="content"><p>ignored because main matches first</p></div>
<main>
  <h1>Anthrax outbreak</h1>
  <p>Cases confirmed in
     two districts.</p>
  <script>var x = 1;</script>
  <ul><li>Quarantine</li><li>  </li></ul>
</main>
</body></html>`
	srv := newServer(t, http.StatusOK, "text/html", page)

	e := NewHTMLExtractor(testClient(), "ua", nil, zap.NewNop())
	got := e.Extract(context.Background(), srv.URL)
	require.Equal(t, "Anthrax outbreak\nCases confirmed in\n     two districts.\nQuarantine", got)
}

func TestHTMLExtractorItemPageSelector(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, "text/html",
		`<div class="item-page"><p>first</p></div><div class="item-page"><p>second</p></div>`)

	e := NewHTMLExtractor(testClient(), "", nil, nil)
	require.Equal(t, "first", e.Extract(context.Background(), srv.URL))
}

func TestHTMLExtractorNoSelectorMatches(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, "text/html", `<div class="sidebar">nothing here</div>`)

	e := NewHTMLExtractor(testClient(), "", nil, zap.NewNop())
	require.Equal(t, "", e.Extract(context.Background(), srv.URL))
}

func TestHTMLExtractorCustomSelectors(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, "text/html", `<article>a</article><section id="body">b</section>`)

	e := NewHTMLExtractor(testClient(), "", []string{"section#body", "article"}, zap.NewNop())
	require.Equal(t, "b", e.Extract(context.Background(), srv.URL))
}

func TestHTMLExtractorStatusFailure(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusNotFound, "text/html", `<article>missing</article>`)

	e := NewHTMLExtractor(testClient(), "", nil, zap.NewNop())
	require.Equal(t, "", e.Extract(context.Background(), srv.URL))
}

func TestPDFExtractorDegradesOnFailure(t *testing.T) {
	t.Parallel()

	notFound := newServer(t, http.StatusNotFound, "application/pdf", "")
	garbage := newServer(t, http.StatusOK, "application/pdf", "this is not a pdf")

	e := NewPDFExtractor(testClient(), "ua", zap.NewNop())
	require.Equal(t, "", e.Extract(context.Background(), notFound.URL+"/a.pdf"))
	require.Equal(t, "", e.Extract(context.Background(), garbage.URL+"/b.pdf"))
	require.Equal(t, "", e.Extract(context.Background(), "http://127.0.0.1:1/unreachable.pdf"))
}

func TestConcatPagesSkipsFailingPages(t *testing.T) {
	t.Parallel()

	src := fakePages{
		texts: []string{"page one. ", "", "page three."},
		errs:  map[int]error{2: errors.New("no text layer")},
	}
	var failed []int
	got := concatPages(src, func(page int, _ error) { failed = append(failed, page) })
	require.Equal(t, "page one. page three.", got)
	require.Equal(t, []int{2}, failed)
}

func TestDownloaderRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, "application/pdf", "0123456789")
	d := downloader{client: testClient(), maxBytes: 5}
	_, err := d.get(context.Background(), srv.URL)
	require.Error(t, err)

	d.maxBytes = 10
	body, err := d.get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(body))
}

func TestRouterDispatchesOnSuffix(t *testing.T) {
	t.Parallel()

	pdf := &recordingExtractor{out: "pdf"}
	html := &recordingExtractor{out: "html"}
	r := NewRouter(pdf, html)

	require.Equal(t, "pdf", r.Extract(context.Background(), "https://example.gov/a/B.PDF?download=1"))
	require.Equal(t, "html", r.Extract(context.Background(), "https://example.gov/a/release"))
	require.Equal(t, []string{"https://example.gov/a/B.PDF?download=1"}, pdf.urls)
	require.Equal(t, []string{"https://example.gov/a/release"}, html.urls)
}

type fakePages struct {
	texts []string
	errs  map[int]error
}

func (f fakePages) NumPage() int { return len(f.texts) }

func (f fakePages) PageText(i int) (string, error) {
	if err := f.errs[i]; err != nil {
		return "", err
	}
	return f.texts[i-1], nil
}

type recordingExtractor struct {
	out  string
	urls []string
}

func (r *recordingExtractor) Extract(_ context.Context, u string) string {
	r.urls = append(r.urls, u)
	return r.out
}
