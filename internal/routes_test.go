package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountpulse/internal/config"
	"accountpulse/internal/metrics"
)

func registeredRoutes(t *testing.T) []fiber.Route {
	t.Helper()
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: NewRouteMounter(config.GetConfig(), metrics.New()),
	})
	return srv.App.GetRoutes(true)
}

func findRoute(routes []fiber.Route, method, path string) *fiber.Route {
	for idx := range routes {
		if routes[idx].Method == method && routes[idx].Path == path {
			return &routes[idx]
		}
	}
	return nil
}

func TestPublicTrackingRoutesRateLimited(t *testing.T) {
	routes := registeredRoutes(t)

	for _, path := range []string{
		"/x/api/v1/visits",
		"/x/api/v1/visits/:id/metrics",
		"/x/api/v1/visits/:id/cta",
		"/x/api/v1/visits/:id/form",
		"/x/api/v1/visits/:id/chat",
	} {
		route := findRoute(routes, fiber.MethodPost, path)
		require.NotNilf(t, route, "expected %s to be registered", path)
		require.NotNilf(t, findRoute(routes, fiber.MethodOptions, path), "expected preflight for %s", path)

		// The limiter is wrapped so it only applies in production; the
		// wrapper is still on the chain.
		hasRateLimiter := false
		var handlerNames []string
		for _, handler := range route.Handlers {
			name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
			handlerNames = append(handlerNames, name)
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "mountRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		assert.Truef(t, hasRateLimiter, "expected rate limiter middleware on %s, handlers: %v", path, handlerNames)
	}
}

func TestAdminAndOperationsRoutesRegistered(t *testing.T) {
	routes := registeredRoutes(t)

	expected := []struct{ method, path string }{
		{fiber.MethodGet, "/_health"},
		{fiber.MethodGet, "/metrics"},
		{fiber.MethodPost, "/api/v1/admin/aggregations"},
		{fiber.MethodPost, "/api/v1/admin/aggregations/backfill"},
		{fiber.MethodGet, "/api/v1/admin/campaigns/:id/dashboard"},
		{fiber.MethodPost, "/api/v1/admin/scores"},
		{fiber.MethodPost, "/api/v1/admin/contacts/:id/score"},
		{fiber.MethodPost, "/api/v1/admin/enrollments"},
		{fiber.MethodPost, "/api/v1/admin/enrollments/:id/advance"},
		{fiber.MethodGet, "/api/v1/admin/contacts/:id/next-touch"},
	}
	for _, e := range expected {
		assert.NotNilf(t, findRoute(routes, e.method, e.path), "expected %s %s to be registered", e.method, e.path)
	}
}
