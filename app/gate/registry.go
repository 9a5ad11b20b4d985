package gate

import (
	"errors"
	"sort"
	"strings"
)

var ErrGateNotSupported = errors.New("gate is not supported")

type Registry struct {
	gates map[string]Gate
}

func NewRegistry(gates ...Gate) *Registry {
	items := make(map[string]Gate, len(gates))
	for _, g := range gates {
		items[strings.ToLower(g.Code())] = g
	}
	return &Registry{gates: items}
}

func (r *Registry) Get(code string) (Gate, error) {
	g, ok := r.gates[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrGateNotSupported
	}
	return g, nil
}

// InquiryCodes lists the codes of registered gates that implement Inquirer.
func (r *Registry) InquiryCodes() []string {
	codes := make([]string, 0, len(r.gates))
	for code, g := range r.gates {
		if _, ok := g.(Inquirer); ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
