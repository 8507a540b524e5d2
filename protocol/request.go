package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

const MethodEvaluate = "Runtime.evaluate"

type paramKind int

const (
	kindString paramKind = iota
	kindBool
)

// ParamValue is a single method call parameter. Only strings and bools are needed to drive evaluation.
type ParamValue struct {
	kind paramKind
	s    string
	b    bool
}

func String(s string) ParamValue { return ParamValue{kind: kindString, s: s} }

func Bool(b bool) ParamValue { return ParamValue{kind: kindBool, b: b} }

func (v ParamValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.s)
	case kindBool:
		return json.Marshal(v.b)
	}
	return nil, fmt.Errorf("unknown param kind %d", v.kind)
}

func (v ParamValue) String() string {
	if v.kind == kindBool {
		return fmt.Sprint(v.b)
	}
	return v.s
}

// MethodCall is an outbound request frame.
type MethodCall struct {
	ID     int64                 `json:"id"`
	Method string                `json:"method"`
	Params map[string]ParamValue `json:"params"`
}

// IDGenerator hands out request ids starting at 0. It is safe for concurrent use.
type IDGenerator struct {
	next atomic.Int64
}

func (g *IDGenerator) Next() int64 {
	return g.next.Add(1) - 1
}

// Builder constructs method calls, assigning each a unique id from its generator.
type Builder struct {
	ids *IDGenerator
}

func NewBuilder() *Builder {
	return &Builder{ids: &IDGenerator{}}
}

// NewBuilderWithIDs returns a builder that shares the given generator.
func NewBuilderWithIDs(ids *IDGenerator) *Builder {
	return &Builder{ids: ids}
}

func (b *Builder) MethodCall(method string, params map[string]ParamValue) MethodCall {
	if params == nil {
		params = map[string]ParamValue{}
	}
	return MethodCall{
		ID:     b.ids.Next(),
		Method: method,
		Params: params,
	}
}

// Evaluate builds a Runtime.evaluate call that awaits promises, exposes the command line API and
// is not blocked by the page's CSP.
func (b *Builder) Evaluate(expression string) MethodCall {
	return b.MethodCall(MethodEvaluate, map[string]ParamValue{
		"awaitPromise":                Bool(true),
		"includeCommandLineAPI":       Bool(true),
		"allowUnsafeEvalBlockedByCSP": Bool(true),
		"expression":                  String(expression),
	})
}

// PollVariable builds an evaluation that serializes the named variable to a JSON string.
func (b *Builder) PollVariable(name string) MethodCall {
	return b.Evaluate(PollExpression(name))
}

func PollExpression(name string) string {
	return "JSON.stringify(" + name + ")"
}
