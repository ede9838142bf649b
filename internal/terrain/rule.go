package terrain

import (
	"fmt"
	"math"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/faults"
)

// Op is a comparison direction.
type Op string

const (
	Above Op = "above"
	Below Op = "below"
)

// Condition compares one attribute against a threshold. Band is the fuzzy
// half-width around the threshold; zero makes the condition crisp.
type Condition struct {
	Attribute string  `yaml:"attribute" json:"attribute"`
	Op        Op      `yaml:"op" json:"op"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Band      float64 `yaml:"band,omitempty" json:"band,omitempty"`
}

// membership is the degree to which v satisfies c: 0 or 1 outside the band,
// linear inside it, 0.5 on the threshold itself.
func (c Condition) membership(v float64, fuzzy bool) float64 {
	if !fuzzy || c.Band == 0 {
		if (c.Op == Above && v > c.Threshold) || (c.Op == Below && v < c.Threshold) {
			return 1
		}
		return 0
	}
	var w float64
	if c.Op == Above {
		w = (v - (c.Threshold - c.Band)) / (2 * c.Band)
	} else {
		w = ((c.Threshold + c.Band) - v) / (2 * c.Band)
	}
	return math.Max(0, math.Min(1, w))
}

// Rule maps attributes to a label. Every All condition must hold and, when
// Any is set, at least one Any condition must hold. Expr is an alternative
// boolean predicate over the attributes named in Requires. A rule with no
// conditions and no Expr is a fallback and always applies.
type Rule struct {
	Name     string      `yaml:"name" json:"name"`
	Label    Label       `yaml:"label" json:"label"`
	Priority int         `yaml:"priority" json:"priority"`
	All      []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any      []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Expr     string      `yaml:"expr,omitempty" json:"expr,omitempty"`
	Requires []string    `yaml:"requires,omitempty" json:"requires,omitempty"`

	program *vm.Program
}

func (r Rule) fallback() bool {
	return len(r.All) == 0 && len(r.Any) == 0 && r.Expr == ""
}

func (r Rule) validate() error {
	field := "terrain.rules." + r.Name
	if r.Name == "" {
		return faults.Config("terrain.rules", "rule with label %v has no name", r.Label)
	}
	if _, ok := labelNames[r.Label]; !ok || r.Label == Uncertain {
		return faults.Config(field, "invalid label %v", r.Label)
	}
	if r.Expr != "" && (len(r.All) > 0 || len(r.Any) > 0) {
		return faults.Config(field, "expr and conditions are exclusive")
	}
	for _, c := range append(append([]Condition{}, r.All...), r.Any...) {
		if !environment.KnownAttribute(c.Attribute) {
			return faults.Config(field, "unknown attribute %q", c.Attribute)
		}
		if c.Op != Above && c.Op != Below {
			return faults.Config(field, "unknown op %q", c.Op)
		}
		if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
			return faults.Config(field, "threshold for %s must be finite", c.Attribute)
		}
		if math.IsNaN(c.Band) || c.Band < 0 {
			return faults.Config(field, "band for %s must be a non-negative number", c.Attribute)
		}
	}
	for _, req := range r.Requires {
		if !environment.KnownAttribute(req) {
			return faults.Config(field, "requires unknown attribute %q", req)
		}
	}
	return nil
}

// evaluate returns the rule's membership in [0,1] and whether the rule could
// be evaluated at all given the known attributes.
func (r Rule) evaluate(a environment.Attributes, fuzzy bool) (float64, bool, error) {
	if r.fallback() {
		return 1, true, nil
	}
	if r.program != nil {
		for _, req := range r.Requires {
			if _, ok := a.Get(req); !ok {
				return 0, false, nil
			}
		}
		out, err := expr.Run(r.program, newEnv(a))
		if err != nil {
			return 0, false, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if b, _ := out.(bool); b {
			return 1, true, nil
		}
		return 0, true, nil
	}

	w := 1.0
	for _, c := range r.All {
		v, ok := a.Get(c.Attribute)
		if !ok {
			return 0, false, nil
		}
		w = math.Min(w, c.membership(v, fuzzy))
	}
	if len(r.Any) > 0 {
		best, known := 0.0, false
		for _, c := range r.Any {
			if v, ok := a.Get(c.Attribute); ok {
				known = true
				best = math.Max(best, c.membership(v, fuzzy))
			}
		}
		if !known {
			return 0, false, nil
		}
		w = math.Min(w, best)
	}
	return w, true, nil
}

// sortRules orders by ascending priority, keeping declaration order on ties.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
}

// exprEnv is the variable set visible to rule and proxy expressions.
type exprEnv struct {
	Elevation     float64 `expr:"elevation"`
	Precipitation float64 `expr:"precipitation"`
	Humidity      float64 `expr:"humidity"`
	Slope         float64 `expr:"slope"`
	Vegetation    float64 `expr:"vegetation"`
}

func newEnv(a environment.Attributes) exprEnv {
	var env exprEnv
	env.Elevation, _ = a.Get(environment.Elevation)
	env.Precipitation, _ = a.Get(environment.Precipitation)
	env.Humidity, _ = a.Get(environment.Humidity)
	env.Slope, _ = a.Get(environment.Slope)
	env.Vegetation, _ = a.Get(environment.Vegetation)
	return env
}

func compileRule(r *Rule) error {
	if r.Expr == "" {
		return nil
	}
	prog, err := expr.Compile(r.Expr, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return faults.Config("terrain.rules."+r.Name, "compile expr: %v", err)
	}
	r.program = prog
	return nil
}

type proxy struct {
	attr     string
	requires []string
	program  *vm.Program
}

func compileProxy(attr string, p Proxy) (proxy, error) {
	prog, err := expr.Compile(p.Expr, expr.Env(exprEnv{}), expr.AsFloat64())
	if err != nil {
		return proxy{}, faults.Config("terrain.proxies."+attr, "compile expr: %v", err)
	}
	return proxy{attr: attr, requires: p.Requires, program: prog}, nil
}

// fill sets the proxy attribute when it is unknown and its inputs are known.
func (p proxy) fill(a environment.Attributes) environment.Attributes {
	if _, ok := a.Get(p.attr); ok {
		return a
	}
	for _, req := range p.requires {
		if _, ok := a.Get(req); !ok {
			return a
		}
	}
	out, err := expr.Run(p.program, newEnv(a))
	if err != nil {
		return a
	}
	v, ok := out.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return a
	}
	filled, _ := a.With(p.attr, v)
	return filled
}
