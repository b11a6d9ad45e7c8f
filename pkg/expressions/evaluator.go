// Package expressions extracts values from decoded upstream JSON with
// JMESPath. Compiled expressions are cached per evaluator.
package expressions

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/jmespath/go-jmespath"
)

type Evaluator struct {
	compiled sync.Map // expression -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Search runs expression against data
func (e *Evaluator) Search(expression string, data any) (any, error) {
	compiled, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// Truthy reports whether expression yields a JMESPath truthy value. null,
// false, "", [] and {} are false.
func (e *Evaluator) Truthy(expression string, data any) (bool, error) {
	result, err := e.Search(expression, data)
	if err != nil {
		return false, err
	}

	switch v := result.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return v != "", nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	default:
		return true, nil
	}
}

// Records evaluates expression to a list of objects. A missing list is
// empty; elements that are not objects are dropped.
func (e *Evaluator) Records(expression string, data any) ([]map[string]any, error) {
	result, err := e.Search(expression, data)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("expression %q yielded %T, expected a list", expression, result)
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// Text evaluates expression to a string. A missing value is "".
func (e *Evaluator) Text(expression string, data any) (string, error) {
	result, err := e.Search(expression, data)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expression %q yielded %T, expected a string", expression, result)
	}
}

// Validate compiles expression without evaluating it
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	actual, _ := e.compiled.LoadOrStore(expression, compiled)
	return actual.(*jmespath.JMESPath), nil
}

// Int64 converts a decoded JSON number or numeric string to int64
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
