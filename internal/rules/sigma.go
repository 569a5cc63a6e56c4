// Package rules turns a signal's rule-node definitions into a Sigma
// detection rule, for export to downstream detection tooling and for
// previewing whether a record's attributes would match.
package rules

import (
	"context"
	"fmt"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"
	"gopkg.in/yaml.v3"

	"casetree/pkg/models"
)

// CompileStats reports how the signal's nodes were consumed.
type CompileStats struct {
	Selections   int
	SkippedNodes int
}

// Fields matched by substring rather than equality: free-text and
// multi-valued record attributes.
var containsFields = map[string]bool{
	"Description":    true,
	"RelatedAssets":  true,
	"RelatedDomains": true,
}

type sigmaDoc struct {
	Title       string         `yaml:"title"`
	ID          string         `yaml:"id,omitempty"`
	Status      string         `yaml:"status"`
	Description string         `yaml:"description,omitempty"`
	Logsource   sigmaLogsource `yaml:"logsource"`
	Detection   map[string]any `yaml:"detection"`
	Level       string         `yaml:"level"`
}

type sigmaLogsource struct {
	Product string `yaml:"product"`
	Service string `yaml:"service"`
}

// Compile renders the signal as a Sigma rule document and validates that
// the result parses. Typed and time inputs become selections, operator
// nodes join them, and string nodes become the rule description.
func Compile(sig *models.Signal) ([]byte, CompileStats, error) {
	var stats CompileStats
	if sig == nil {
		return nil, stats, fmt.Errorf("signal is required")
	}

	detection := make(map[string]any, len(sig.Nodes)+1)
	var condition []string
	var prose []string
	lastWasTerm := false
	pendingNot := false

	for _, node := range sig.Nodes {
		switch node.Kind {
		case models.RuleNodeTyped, models.RuleNodeTime:
			if strings.TrimSpace(node.Field) == "" || strings.TrimSpace(node.Value) == "" {
				stats.SkippedNodes++
				continue
			}
			name := fmt.Sprintf("sel%d", stats.Selections)
			stats.Selections++
			detection[name] = map[string]any{selectionKey(node.Field): node.Value}

			term := name
			if pendingNot {
				term = "not " + name
				pendingNot = false
			}
			if lastWasTerm {
				condition = append(condition, "and")
			}
			condition = append(condition, term)
			lastWasTerm = true
		case models.RuleNodeOperator:
			switch op := strings.ToLower(strings.TrimSpace(node.Operator)); op {
			case "not":
				pendingNot = true
			case "and", "or":
				if lastWasTerm {
					condition = append(condition, op)
					lastWasTerm = false
				}
			default:
				stats.SkippedNodes++
			}
		case models.RuleNodeString:
			if strings.TrimSpace(node.Text) != "" {
				prose = append(prose, strings.TrimSpace(node.Text))
			}
		default:
			stats.SkippedNodes++
		}
	}

	if stats.Selections == 0 {
		return nil, stats, fmt.Errorf("signal %s has no usable match nodes", sig.ID)
	}
	// A trailing dangling operator would make the condition unparseable.
	if !lastWasTerm {
		condition = condition[:len(condition)-1]
	}
	detection["condition"] = strings.Join(condition, " ")

	title := strings.TrimSpace(sig.Description)
	if title == "" {
		title = "Detection signal " + sig.ID
	}

	doc := sigmaDoc{
		Title:       title,
		ID:          sig.ID,
		Status:      "experimental",
		Description: strings.Join(prose, " "),
		Logsource:   sigmaLogsource{Product: "casetree", Service: "investigations"},
		Detection:   detection,
		Level:       "medium",
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, stats, fmt.Errorf("marshal sigma rule: %w", err)
	}
	if _, err := sigma.ParseRule(raw); err != nil {
		return nil, stats, fmt.Errorf("compiled rule does not parse: %w", err)
	}
	return raw, stats, nil
}

// Matches compiles the signal and evaluates it against the record's
// attributes.
func Matches(ctx context.Context, sig *models.Signal, rec *models.Record) (bool, error) {
	raw, _, err := Compile(sig)
	if err != nil {
		return false, err
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return false, fmt.Errorf("parse compiled rule: %w", err)
	}

	eval := sigmaevaluator.ForRule(rule)
	res, err := eval.Matches(ctx, recordEvent(rec))
	if err != nil {
		return false, fmt.Errorf("evaluate rule against record: %w", err)
	}
	return res.Match, nil
}

func selectionKey(field string) string {
	if containsFields[field] {
		return field + "|contains"
	}
	return field
}

func recordEvent(rec *models.Record) map[string]interface{} {
	if rec == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"Name":           rec.Name,
		"Status":         string(rec.Status),
		"Severity":       string(rec.Severity),
		"Assignee":       rec.Assignee,
		"Description":    rec.Description,
		"CreatedAt":      rec.CreatedAt,
		"RelatedAssets":  strings.Join(rec.RelatedAssets, ", "),
		"RelatedDomains": strings.Join(rec.RelatedDomains, ", "),
	}
}
