package routing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Allowlist declares, per entrypoint binary, every route the binary is
// allowed to serve together with its route class.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, errors.New("allowlist: unsupported version")
	}
	if a.Entrypoints == nil {
		return Allowlist{}, errors.New("allowlist: missing entrypoints")
	}
	return a, nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	a, err := ParseAllowlistYAML(b)
	if err != nil {
		return Allowlist{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Allows reports whether the entrypoint declares method on path. Pattern
// routes ({param} segments) match any non-empty segment.
func (a Allowlist) Allows(entrypoint string, method string, path string) bool {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return false
	}
	for _, r := range ep.Routes {
		if r.Path != path {
			p, isPattern := parsePathPattern(r.Path)
			if !isPattern {
				continue
			}
			if _, ok := p.Match(path); !ok {
				continue
			}
		}
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				return true
			}
		}
	}
	return false
}
