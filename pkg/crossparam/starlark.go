package crossparam

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/paramguard/paramguard/pkg/catalog"
)

// evalBool evaluates a compiled expression to its truth value. The
// environment binds every referenced parameter name to its configured
// value (None when absent) plus a read-only config dict of the full
// snapshot. Evaluation is bounded by the validator timeout.
func (v *Validator) evalBool(expr syntax.Expr, c *catalog.CrossParameterConstraint, cfg map[string]interface{}) (bool, error) {
	env, err := buildEnv(c.Parameters, cfg)
	if err != nil {
		return false, err
	}

	thread := &starlark.Thread{
		Name: "paramguard",
		Print: func(_ *starlark.Thread, _ string) {
			// Constraint expressions have no output channel.
		},
	}

	type evalResult struct {
		value starlark.Value
		err   error
	}
	resultCh := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- evalResult{err: fmt.Errorf("expression evaluation panicked: %v", r)}
			}
		}()
		value, err := starlark.EvalExpr(thread, expr, env)
		resultCh <- evalResult{value: value, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return false, r.err
		}
		return bool(r.value.Truth()), nil
	case <-time.After(v.timeout):
		thread.Cancel("expression timeout")
		return false, fmt.Errorf("expression timed out after %v", v.timeout)
	}
}

// buildEnv constructs the Starlark environment for one evaluation.
func buildEnv(params []string, cfg map[string]interface{}) (starlark.StringDict, error) {
	env := make(starlark.StringDict, len(params)+1)

	for _, name := range params {
		value, ok := cfg[name]
		if !ok {
			env[name] = starlark.None
			continue
		}
		sv, err := toStarlark(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		env[name] = sv
	}

	config := starlark.NewDict(len(cfg))
	for k, val := range cfg {
		sv, err := toStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}
		if err := config.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	env["config"] = config

	return env, nil
}

// toStarlark converts a configuration value to a Starlark value.
func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
