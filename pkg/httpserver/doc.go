// Package httpserver runs an http.Handler with configured timeouts and a
// graceful shutdown tied to a context.
//
// Run listens, serves until ctx is done, drains in-flight requests within
// Config.ShutdownTimeout and then runs the registered shutdown functions in
// reverse order. Signal handling is left to the caller:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log), httpserver.OnShutdown(kit.Close))
//	if err := srv.Run(ctx, handler); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Liveness and Readiness return probe handlers.
package httpserver
