package router

import (
	"net/http"
	"strings"
)

type Middleware func(http.Handler) http.Handler

type Router struct {
	prefix     string
	mux        *http.ServeMux
	middleware []Middleware
}

func New() *Router {
	return &Router{
		prefix: "",
		mux:    http.NewServeMux(),
	}
}

func (rt *Router) Use(mw ...Middleware) {
	rt.middleware = append(rt.middleware, mw...)
}

func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.mux.Handle(normalize(pattern), handler)
}

func (rt *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.mux.HandleFunc(normalize(pattern), handler)
}

// With returns a view of rt whose handlers are additionally wrapped by mw.
// Routes registered through the view land on rt's mux; rt's own middleware still runs first.
func (rt *Router) With(mw ...Middleware) *Route {
	return &Route{
		rt:         rt,
		middleware: mw,
	}
}

func (rt *Router) SubRouter(prefix string) *Router {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		panic("empty subrout")
	}

	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	s := &Router{
		prefix: prefix,
		mux:    http.NewServeMux(),
	}

	rt.mux.Handle(prefix+"/", http.StripPrefix(prefix, s))
	return s
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chain(rt.mux, rt.middleware).ServeHTTP(w, r)
}

// Route registers handlers on a router behind an extra middleware chain
type Route struct {
	rt         *Router
	middleware []Middleware
}

func (ro *Route) Handle(pattern string, handler http.Handler) {
	ro.rt.Handle(pattern, chain(handler, ro.middleware))
}

func (ro *Route) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	ro.Handle(pattern, http.HandlerFunc(handler))
}

func chain(h http.Handler, mw []Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// normalize prefixes the path part of a pattern with a slash; "POST login" becomes "POST /login"
func normalize(pattern string) string {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		path, method = pattern, ""
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if method == "" {
		return path
	}
	return method + " " + path
}
