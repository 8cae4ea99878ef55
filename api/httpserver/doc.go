// Package httpserver provides the shared HTTP server shell for the
// service binaries.
//
// BaseServer wraps a chi router with the operational surface every
// deployment wants: request logging, health endpoints, drain control for
// load balancers, the optional metrics listener, optional pprof, and
// graceful shutdown. Components plug their routes in through the
// RouteRegistrar interface; the substrate gateway is the main user.
//
// # Health and Diagnostics
//
// Every server built on BaseServer automatically serves:
//
//   - /livez: liveness check
//   - /readyz: readiness check, controlled by drain state
//   - /drain, /undrain: readiness toggles for rolling restarts
//   - /metrics on the separate metrics address, when configured
//   - /debug pprof endpoints, when enabled
//
// # Usage
//
//	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr:  cfg.ListenAddr,
//	    MetricsAddr: cfg.MetricsAddr,
//	    Log:         log,
//	}, gateway)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
