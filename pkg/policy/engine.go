package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/condaenv/pkg/engine"
)

// Gate evaluates Rego policies before mutating steps. It implements engine.PolicyGate.
type Gate struct {
	policies []compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

var _ engine.PolicyGate = (*Gate)(nil)

// NewGate compiles policies. Each policy must define a `deny` set in its package.
func NewGate(ctx context.Context, logger zerolog.Logger, policies []Policy) (*Gate, error) {
	g := &Gate{logger: logger.With().Str("component", "policy-gate").Logger()}

	for i := range policies {
		p := &policies[i]

		module, err := ast.ParseModule(p.Name, p.Rego)
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
		}

		query, err := rego.New(
			rego.Query(fmt.Sprintf("%s.deny", module.Package.Path)),
			rego.ParsedModule(module),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}

		g.policies = append(g.policies, compiledPolicy{policy: p, query: query})
		g.logger.Debug().Str("policy", p.Name).Str("package", module.Package.Path.String()).Msg("policy compiled")
	}

	return g, nil
}

// Evaluate runs every policy against input. The step is denied when any violation has a
// blocking severity.
func (g *Gate) Evaluate(ctx context.Context, input *engine.PolicyInput) (*engine.PolicyDecision, error) {
	doc, err := toDocument(input)
	if err != nil {
		return nil, err
	}

	decision := &engine.PolicyDecision{Allowed: true}
	for _, cp := range g.policies {
		results, err := cp.query.Eval(ctx, rego.EvalInput(doc))
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation error: %w", cp.policy.Name, err)
		}

		for _, result := range results {
			for _, expr := range result.Expressions {
				denySet, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denySet {
					message, severity := violationOf(cp.policy, d)
					if !severity.Blocking() {
						g.logger.Warn().Str("policy", cp.policy.Name).Str("action", input.Action).Msg(message)
						continue
					}
					decision.Allowed = false
					decision.Violations = append(decision.Violations, engine.PolicyViolation{
						Policy:  cp.policy.Name,
						Message: message,
					})
				}
			}
		}
	}

	g.logger.Debug().
		Str("action", input.Action).
		Bool("allowed", decision.Allowed).
		Int("violations", len(decision.Violations)).
		Msg("policy evaluation completed")

	return decision, nil
}

// violationOf reads a deny entry. Entries are strings or objects with "message" and an
// optional "severity".
func violationOf(p *Policy, entry interface{}) (string, Severity) {
	severity := p.Severity
	switch v := entry.(type) {
	case string:
		return v, severity
	case map[string]interface{}:
		msg, _ := v["message"].(string)
		if s, ok := v["severity"].(string); ok {
			severity = Severity(s)
		}
		if msg == "" {
			msg = fmt.Sprintf("%v", v)
		}
		return msg, severity
	default:
		return fmt.Sprintf("%v", v), severity
	}
}

// toDocument converts input to plain JSON values so policies see the JSON field names.
func toDocument(input *engine.PolicyInput) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy input: %w", err)
	}
	return doc, nil
}
