package terrain

import (
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/hexatlas/internal/environment"
)

// Result is the outcome of classifying one attribute bundle.
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	// Rule names the rule that decided the label, empty for Uncertain.
	Rule string `json:"rule,omitempty"`
	// Skipped lists rules that could not be evaluated for missing data.
	Skipped []string `json:"skipped,omitempty"`
}

// Classifier applies a validated rule set. It is safe for concurrent use.
type Classifier struct {
	mode    Mode
	rules   []Rule
	proxies []proxy
}

// New validates cfg and compiles its expressions.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{mode: cfg.Mode, rules: cfg.RuleSet()}
	for i := range c.rules {
		if err := compileRule(&c.rules[i]); err != nil {
			return nil, err
		}
	}

	attrs := make([]string, 0, len(cfg.Proxies))
	for attr := range cfg.Proxies {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	for _, attr := range attrs {
		p, err := compileProxy(attr, cfg.Proxies[attr])
		if err != nil {
			return nil, err
		}
		c.proxies = append(c.proxies, p)
	}
	return c, nil
}

// Mode reports crisp or fuzzy.
func (c *Classifier) Mode() Mode { return c.mode }

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

type verdict struct {
	w         float64
	evaluable bool
}

// Classify labels one attribute bundle. It never fails: rules whose inputs
// are unknown are skipped, and if nothing can be evaluated the result is
// Uncertain with zero confidence.
func (c *Classifier) Classify(a environment.Attributes) Result {
	for _, p := range c.proxies {
		a = p.fill(a)
	}

	fuzzy := c.mode == Fuzzy
	verdicts := make([]verdict, len(c.rules))
	var res Result
	anyEvaluable := false
	for i, r := range c.rules {
		w, ok, err := r.evaluate(a, fuzzy)
		if err != nil {
			slog.Debug("rule evaluation failed", "rule", r.Name, "error", err)
		}
		if !ok {
			res.Skipped = append(res.Skipped, r.Name)
			continue
		}
		verdicts[i] = verdict{w: w, evaluable: true}
		if !r.fallback() {
			anyEvaluable = true
		}
	}
	if len(res.Skipped) > 0 {
		slog.Debug("rules skipped for missing data", "rules", res.Skipped, "attributes", a.String())
	}

	res.Label, res.Confidence, res.Rule = c.decide(verdicts, 0, anyEvaluable)
	return res
}

// decide walks rules from index i. A full member wins outright; a partial
// member is weighed against whatever the remaining rules decide.
func (c *Classifier) decide(verdicts []verdict, i int, anyEvaluable bool) (Label, float64, string) {
	for j := i; j < len(c.rules); j++ {
		r, v := c.rules[j], verdicts[j]
		if !v.evaluable {
			continue
		}
		if r.fallback() {
			if !anyEvaluable {
				return Uncertain, 0, ""
			}
			return r.Label, 1, r.Name
		}
		switch {
		case v.w <= 0:
			continue
		case v.w >= 1:
			return r.Label, 1, r.Name
		case v.w >= 0.5:
			return r.Label, 2*v.w - 1, r.Name
		}
		label, conf, name := c.decide(verdicts, j+1, anyEvaluable)
		return label, math.Min(1-2*v.w, conf), name
	}
	return Uncertain, 0, ""
}

// ClassifyAll labels a batch in input order.
func (c *Classifier) ClassifyAll(attrs []environment.Attributes) []Result {
	out := make([]Result, len(attrs))
	for i, a := range attrs {
		out[i] = c.Classify(a)
	}
	return out
}
