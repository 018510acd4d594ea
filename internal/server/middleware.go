// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ksaregtech/regtech-tui/internal/logging"
)

// ============================================================================
// CORS
// ============================================================================

// allowedOrigins matches local dev servers and preview deployments of the web client.
var allowedOrigins = regexp.MustCompile(`^https?://(localhost:\d+|[A-Za-z0-9.-]+\.vercel\.app)$`)

// corsMiddleware allows browser clients on the origins above to call the API.
func corsMiddleware() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return allowedOrigins.MatchString(origin), nil
		},
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	})
}

// ============================================================================
// REQUEST LOGGING
// ============================================================================

// requestLogger logs one line per request.
//
// Log format: "POST /api/chat | 200 | 1.234s"
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			logger.Info("%s %s | %d | %.3fs",
				req.Method,
				req.URL.Path,
				c.Response().Status,
				time.Since(start).Seconds(),
			)
			return nil
		}
	}
}

// ============================================================================
// CHAIN
// ============================================================================

// MaxRequestBodySize bounds POST bodies.
const MaxRequestBodySize = "1M"

func (s *Server) useMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(requestLogger(s.logger))
	s.echo.Use(corsMiddleware())
	s.echo.Use(middleware.BodyLimit(MaxRequestBodySize))
}
