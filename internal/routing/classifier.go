package routing

import (
	"errors"
	"strings"
)

type RouteClass string

const (
	RouteClassUI          RouteClass = "ui"
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassAuthn       RouteClass = "authn"
	RouteClassOps         RouteClass = "ops"
	RouteClassStatic      RouteClass = "static"
	RouteClassDownload    RouteClass = "download"
)

type Classifier struct {
	entrypoint        string
	allowExact        map[string]RouteClass
	allowPathPatterns []pathPatternRoute
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	exact := make(map[string]RouteClass, len(ep.Routes))
	var patterns []pathPatternRoute
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" {
			return nil, errors.New("allowlist: invalid route")
		}
		if p, ok := parsePathPattern(r.Path); ok {
			patterns = append(patterns, pathPatternRoute{pattern: p, rc: RouteClass(r.RouteClass)})
			continue
		}
		exact[r.Path] = RouteClass(r.RouteClass)
	}
	return &Classifier{entrypoint: entrypoint, allowExact: exact, allowPathPatterns: patterns}, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if rc, ok := c.allowExact[path]; ok {
		return rc
	}
	var (
		best      RouteClass
		bestScore = -1
	)
	for _, p := range c.allowPathPatterns {
		if _, ok := p.pattern.Match(path); ok && p.pattern.literals() > bestScore {
			best = p.rc
			bestScore = p.pattern.literals()
		}
	}
	if bestScore >= 0 {
		return best
	}

	switch {
	case hasPrefixSegment(path, "/admin/static"):
		return RouteClassStatic
	case hasPrefixSegment(path, "/admin/api"):
		return RouteClassInternalAPI
	case isDownloadPath(path):
		return RouteClassDownload
	case path == "/health" || path == "/healthz":
		return RouteClassOps
	default:
		return RouteClassUI
	}
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// isDownloadPath matches /admin/resource/{type}/download and its sample
// variant when the allowlist does not list them.
func isDownloadPath(path string) bool {
	rest, ok := strings.CutPrefix(path, "/admin/resource/")
	if !ok {
		return false
	}
	resourceType, action, ok := strings.Cut(rest, "/")
	if !ok || resourceType == "" {
		return false
	}
	return action == "download" || action == "download-sample"
}

type pathPatternRoute struct {
	pattern PathPattern
	rc      RouteClass
}
