// Package apperr classifies failures into structured errors and funnels them
// to the user through code-keyed notifiers.
//
// # Structured errors
//
// An *Error carries a Code from the closed application registry, a
// developer-facing message, a Kind (internal or external), optional data and
// the trace captured at creation. It is immutable once built.
//
//	return apperr.New(apperr.CodeEmailTaken, "email already registered", apperr.Internal())
//
// An error created without an explicit kind reports KindInternal.
//
// # Classification
//
// Classify accepts any failure value and never fails:
//
//	Input                                  | Code              | Kind
//	---------------------------------------|-------------------|---------
//	*Error (possibly wrapped)              | unchanged         | unchanged
//	error with StatusCode() int            | status table      | external
//	deadline exceeded / net timeout        | TIMEOUT           | external
//	other net.Error (e.g. *url.Error)      | NETWORK_ERROR     | external
//	anything else, nil included            | GENERIC_ERROR     | internal
//
// The status table maps 401 to UNAUTHORIZED, 403 to FORBIDDEN and so on; any
// status without an entry maps to GENERAL_ERROR. When the failure also
// carries a response body, ExtractDetail attaches the validation fields it
// finds as the error's data.
//
// # Handling
//
// A Handler runs an action, classifies its failure and notifies exactly once
// through the Router:
//
//	router := apperr.NewRouter(genericNotifier).
//		Route(apperr.CodeUnauthorized, loginNotifier)
//	h := apperr.NewHandler(router, apperr.WithLogger(log))
//
//	err := h.Handle(ctx, func(ctx context.Context) error {
//		return client.SignIn(ctx, req)
//	}, apperr.HandleOptions{Rethrow: false})
//
// With Rethrow the original failure (not the classified one) propagates to
// the next boundary; panics are re-raised with the identical value. Codes
// without a route fall back to the generic notifier and a warning is logged.
// Notifier errors and panics are logged and never change what Handle returns.
package apperr
