/*
Package logx provides a structured logging wrapper based on zerolog.

This file holds the chi request logging middleware. Each request gets a child logger carrying the
request id and a masked client address, and one line is written when the response completes.
*/
package logx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ipv6Prefix is the number of leading IPv6 bits kept in logs (the routing prefix).
var ipv6Prefix = net.CIDRMask(64, 128)

// anonymizeIP masks the host part of an address before it is logged.
// IPv4 keeps the first three octets; IPv6 keeps the /64 prefix.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}

	return ip.Mask(ipv6Prefix).String()
}

// levelForStatus picks the log level of a completed request from its response status.
func levelForStatus(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// implicitStatus is the status of a request whose handler never called WriteHeader: net/http
// answers 200, and a hijacked WebSocket upgrade already answered 101.
func implicitStatus(r *http.Request) int {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}

// RequestLogger returns chi middleware that logs one line per request. The per-request logger
// is stored in the request context, so handlers can reach it with zerolog.Ctx.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			logger := Component("http").With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = implicitStatus(r)
			}

			event := logger.WithLevel(levelForStatus(status)).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(started))

			if route := chi.RouteContext(r.Context()); route != nil && route.RoutePattern() != "" {
				event = event.Str("route", route.RoutePattern())
			}

			event.Msg("Request completed")
		})
	}
}
