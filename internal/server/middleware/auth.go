// Package middleware provides HTTP middleware for authentication, logging, and request processing.
package middleware

import (
	"context"
	"strings"

	pkglog "ShipRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// AdminAuth returns a middleware that guards mutating endpoints with a
// static admin token. Read-only (GET) requests pass through so dashboards
// can poll health without credentials. When no token is configured the
// middleware is a no-op; that is only acceptable in development.
func AdminAuth(adminToken string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if adminToken == "" {
				return handler(ctx, req)
			}

			var (
				method string
				path   string
				token  string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path

					authHeader := httpReq.Header.Get("Authorization")
					if authHeader != "" {
						token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}
					if token == "" {
						token = httpReq.Header.Get("X-Admin-Token")
					}
				}
			}

			if method == "GET" {
				return handler(ctx, req)
			}

			if token != adminToken {
				logger.Security("admin token rejected",
					"method", method,
					"path", path,
					"token_masked", maskToken(token),
					"request_id", pkglog.GetRequestID(ctx),
				)
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid admin token")
			}

			return handler(ctx, req)
		}
	}
}

// maskToken keeps the first 4 characters for log correlation.
func maskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "***"
}
