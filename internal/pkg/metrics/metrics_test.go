package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakePoolStat struct{ acquired, idle, total int32 }

func (f fakePoolStat) AcquiredConns() int32 { return f.acquired }
func (f fakePoolStat) IdleConns() int32     { return f.idle }
func (f fakePoolStat) TotalConns() int32    { return f.total }

func TestUpdateDBPoolMetrics(t *testing.T) {
	UpdateDBPoolMetrics(fakePoolStat{acquired: 3, idle: 5, total: 8})

	if got := testutil.ToFloat64(DBPoolConnsAcquired); got != 3 {
		t.Errorf("acquired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(DBPoolConnsIdle); got != 5 {
		t.Errorf("idle = %v, want 5", got)
	}
	if got := testutil.ToFloat64(DBPoolConnsOpen); got != 8 {
		t.Errorf("open = %v, want 8", got)
	}

	// Values without pool counters leave the gauges alone.
	UpdateDBPoolMetrics("not a pool")
	if got := testutil.ToFloat64(DBPoolConnsOpen); got != 8 {
		t.Errorf("open = %v after bogus stat, want 8", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(Middleware())
	app.Get("/v1/targets/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/targets/:id", "200"))
	for _, id := range []string{"a", "b"} {
		if _, err := app.Test(httptest.NewRequest("GET", "/v1/targets/"+id, nil), -1); err != nil {
			t.Fatal(err)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/targets/:id", "200"))
	if after-before != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %v", after-before)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	ProjectionsTotal.WithLabelValues("ok").Inc()
	PoseReads.WithLabelValues("malformed").Inc()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{
		"pixgeo_geolocation_projections_total",
		"pixgeo_geolocation_pose_reads_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in scrape output", name)
		}
	}
}
