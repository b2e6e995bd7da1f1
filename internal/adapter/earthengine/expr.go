package earthengine

import (
	"strconv"

	eeapi "google.golang.org/api/earthengine/v1"
)

// graph accumulates value nodes for an Earth Engine expression. Every node is
// stored under a numeric key and referenced by other nodes through that key.
type graph struct {
	values map[string]eeapi.ValueNode
}

func newGraph() *graph {
	return &graph{values: make(map[string]eeapi.ValueNode)}
}

func (g *graph) add(node eeapi.ValueNode) string {
	key := strconv.Itoa(len(g.values))
	g.values[key] = node
	return key
}

// invoke adds a call to a named platform function and returns its key.
func (g *graph) invoke(fn string, args map[string]eeapi.ValueNode) string {
	return g.add(eeapi.ValueNode{
		FunctionInvocationValue: &eeapi.FunctionInvocation{
			FunctionName: fn,
			Arguments:    args,
		},
	})
}

// function wraps a one-argument function definition whose body is the node
// stored at key body.
func function(arg, body string) eeapi.ValueNode {
	return eeapi.ValueNode{
		FunctionDefinitionValue: &eeapi.FunctionDefinition{
			ArgumentNames: []string{arg},
			Body:          body,
		},
	}
}

func (g *graph) expression(result string) *eeapi.Expression {
	return &eeapi.Expression{
		Result: result,
		Values: g.values,
	}
}

func ref(key string) eeapi.ValueNode {
	return eeapi.ValueNode{ValueReference: key}
}

func argRef(name string) eeapi.ValueNode {
	return eeapi.ValueNode{ArgumentReference: name}
}

func constant(v any) eeapi.ValueNode {
	return eeapi.ValueNode{ConstantValue: v}
}

func null() eeapi.ValueNode {
	return eeapi.ValueNode{NullValue: "NULL_VALUE"}
}

func dict(values map[string]eeapi.ValueNode) eeapi.ValueNode {
	return eeapi.ValueNode{DictionaryValue: &eeapi.DictionaryValue{Values: values}}
}
