package attributes

import (
	"fmt"
	"log"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mrzor/wirestamp/internal/config"
	"github.com/mrzor/wirestamp/internal/correlation"
	"go.opentelemetry.io/otel/attribute"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(typeEnv()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Evaluate runs every custom attribute expression against key.
// Ranges without a correlation key get no custom attributes.
func (e *Evaluator) Evaluate(key *correlation.Key) []attribute.KeyValue {
	if len(e.customAttrs) == 0 || key == nil {
		return nil
	}

	env := keyEnv(key)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			// Log error but continue with other attributes
			log.Printf("Warning: failed to evaluate expression for attribute %q: %v", customAttr.Name, err)
			continue
		}

		// Maps expand into one attribute per key
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			for _, k := range outputValue.MapKeys() {
				attrName := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprint(k.Interface()))
				attrs = append(attrs, attribute.String(attrName, fmt.Sprint(outputValue.MapIndex(k).Interface())))
			}
			continue
		}

		attrs = append(attrs, attribute.String(customAttr.Name, fmt.Sprint(output)))
	}

	return attrs
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
