package stomp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Params holds the numeric path variables of a matched destination.
type Params map[string]int64

// HandlerFunc serves one SEND frame. ctx outlives the connection. As a
// subscription guard it receives a nil body and admits the SUBSCRIBE by
// returning nil.
type HandlerFunc func(ctx context.Context, s *Session, p Params, body []byte) error

// Route binds a destination pattern such as /app/chat/{matchId} to a handler.
type Route struct {
	Pattern string
	Handler HandlerFunc
}

type compiledRoute struct {
	pattern  string
	segments []string
	params   map[int]string
	handler  HandlerFunc
}

// Routes is a destination dispatch table. It is fixed after construction.
type Routes struct {
	routes []compiledRoute
}

// NewRoutes builds the SEND table. Every pattern must live under /app/, have
// no empty segments, use each {name} once, and not collide with another
// pattern.
func NewRoutes(defs ...Route) (*Routes, error) {
	return newTable("/app/", defs)
}

// NewSubscriptions builds the SUBSCRIBE guard table, with the NewRoutes rules
// applied under /topic/.
func NewSubscriptions(defs ...Route) (*Routes, error) {
	return newTable("/topic/", defs)
}

func newTable(prefix string, defs []Route) (*Routes, error) {
	rt := &Routes{}
	shapes := make(map[string]string)
	for _, d := range defs {
		if d.Handler == nil {
			return nil, fmt.Errorf("stomp: route %q has no handler", d.Pattern)
		}
		cr, err := compile(prefix, d.Pattern)
		if err != nil {
			return nil, err
		}
		shape := shapeOf(cr)
		if prev, ok := shapes[shape]; ok {
			return nil, fmt.Errorf("stomp: route %q conflicts with %q", d.Pattern, prev)
		}
		shapes[shape] = d.Pattern
		cr.handler = d.Handler
		rt.routes = append(rt.routes, cr)
	}
	return rt, nil
}

func compile(prefix, pattern string) (compiledRoute, error) {
	if !strings.HasPrefix(pattern, prefix) {
		return compiledRoute{}, fmt.Errorf("stomp: route %q must start with %s", pattern, prefix)
	}
	segs := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	cr := compiledRoute{pattern: pattern, segments: segs, params: make(map[int]string)}
	seen := make(map[string]bool)
	for i, seg := range segs {
		if seg == "" {
			return compiledRoute{}, fmt.Errorf("stomp: route %q has an empty segment", pattern)
		}
		if !strings.HasPrefix(seg, "{") && !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
		if len(seg) < 3 || !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") || strings.ContainsAny(name, "{}") {
			return compiledRoute{}, fmt.Errorf("stomp: route %q has a malformed variable %q", pattern, seg)
		}
		if seen[name] {
			return compiledRoute{}, fmt.Errorf("stomp: route %q repeats variable %q", pattern, name)
		}
		seen[name] = true
		cr.params[i] = name
	}
	return cr, nil
}

// shapeOf replaces variables with a wildcard so /a/{x} and /a/{y} collide.
func shapeOf(cr compiledRoute) string {
	parts := make([]string, len(cr.segments))
	for i, seg := range cr.segments {
		if _, ok := cr.params[i]; ok {
			seg = "*"
		}
		parts[i] = seg
	}
	return strings.Join(parts, "/")
}

// Match finds the handler for dest. Variables must be positive integers.
func (rt *Routes) Match(dest string) (HandlerFunc, Params, bool) {
	segs := strings.Split(strings.TrimPrefix(dest, "/"), "/")
	for _, cr := range rt.routes {
		if p, ok := cr.match(segs); ok {
			return cr.handler, p, true
		}
	}
	return nil, nil, false
}

func (cr compiledRoute) match(segs []string) (Params, bool) {
	if len(segs) != len(cr.segments) {
		return nil, false
	}
	p := Params{}
	for i, seg := range segs {
		name, isVar := cr.params[i]
		if !isVar {
			if seg != cr.segments[i] {
				return nil, false
			}
			continue
		}
		n, err := strconv.ParseInt(seg, 10, 64)
		if err != nil || n <= 0 {
			return nil, false
		}
		p[name] = n
	}
	return p, true
}

// Patterns lists the registered patterns in registration order.
func (rt *Routes) Patterns() []string {
	out := make([]string, len(rt.routes))
	for i, cr := range rt.routes {
		out[i] = cr.pattern
	}
	return out
}
