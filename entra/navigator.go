package entra

import (
	"context"
	"net/http"
)

// Navigator sends the user agent to an authorization or logout URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// FuncNavigator adapts a function to [Navigator].
type FuncNavigator func(ctx context.Context, url string) error

func (f FuncNavigator) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

type httpExchangeKey struct{}

type httpExchange struct {
	w http.ResponseWriter
	r *http.Request
}

// WithHTTP attaches the in-flight request and its response writer to ctx so
// that [HTTPNavigator] can answer it with a redirect.
func WithHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request) context.Context {
	return context.WithValue(ctx, httpExchangeKey{}, httpExchange{w: w, r: r})
}

// HTTPNavigator redirects the request carried by ctx.
type HTTPNavigator struct{}

func (HTTPNavigator) Navigate(ctx context.Context, url string) error {
	ex, ok := ctx.Value(httpExchangeKey{}).(httpExchange)
	if !ok || ex.w == nil || ex.r == nil {
		return ErrNoHTTPResponse
	}
	http.Redirect(ex.w, ex.r, url, http.StatusFound)
	return nil
}
