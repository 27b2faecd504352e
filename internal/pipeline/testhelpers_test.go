package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/fire-incidents/internal/extract"
	"github.com/sells-group/fire-incidents/internal/fetcher"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

type row struct {
	number, level, location, typ string
}

// tableHTML renders rows the way the upstream source does, header first.
func tableHTML(rows []row) string {
	var b strings.Builder
	b.WriteString(`<html><body><table><tr><th>Date/Time</th><th>Incident #</th><th>Level</th><th>Units</th><th>Location</th><th>Type</th></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>1/2/2024 9:00:00 AM</td><td>%s</td><td>%s</td><td>E1</td><td>%s</td><td>%s</td></tr>",
			r.number, r.level, r.location, r.typ)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func numberedRows(n int) []row {
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{
			number:   fmt.Sprintf("F%04d", i),
			level:    "1",
			location: fmt.Sprintf("%d Main St", i),
			typ:      "Aid Response",
		}
	}
	return rows
}

// upstream serves body and records the incDate of each request.
type upstream struct {
	*httptest.Server
	mu    sync.Mutex
	dates []string
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.dates = append(u.dates, r.URL.Query().Get("incDate"))
		u.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) requestedDates() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.dates...)
}

func newTestPipeline(srvURL string, r Resolver, opts Options) *Pipeline {
	opts.SourceURL = srvURL + "/sfd/realtime911/getRecsForDatePub.asp"
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
	return New(f, extract.NewExtractor(extract.DefaultLayout()), r, opts)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, rawAddress string) (geocode.Coordinates, bool) {
	args := m.Called(ctx, rawAddress)
	return args.Get(0).(geocode.Coordinates), args.Bool(1)
}

// funcResolver adapts a function to Resolver.
type funcResolver func(ctx context.Context, raw string) (geocode.Coordinates, bool)

func (f funcResolver) Resolve(ctx context.Context, raw string) (geocode.Coordinates, bool) {
	return f(ctx, raw)
}
