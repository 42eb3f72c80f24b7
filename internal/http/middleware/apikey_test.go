package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountpulse/internal/http/middleware"
	"accountpulse/internal/testsupport"
)

func newApp(token string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", middleware.AdminTokenAuth(token, testsupport.GetLogger()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAdminTokenAuth(t *testing.T) {
	testCases := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "valid token", configured: "s3cret", header: "Bearer s3cret", wantStatus: fiber.StatusNoContent},
		{name: "missing header", configured: "s3cret", header: "", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong scheme", configured: "s3cret", header: "Basic s3cret", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong token", configured: "s3cret", header: "Bearer nope", wantStatus: fiber.StatusUnauthorized},
		{name: "disabled when unset", configured: "", header: "Bearer ", wantStatus: fiber.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := newApp(tc.configured).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}
}
