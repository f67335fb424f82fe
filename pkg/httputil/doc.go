// Package httputil provides HTTP utilities shared by the bridge's routes:
// request logging, panic recovery and consistent JSON responses.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteUnauthorized(w, "no active session")
//
// # Middleware
//
//	router.Use(httputil.RecoveryMiddleware(logger))
//	router.Use(httputil.LoggingMiddleware(logger))
package httputil
