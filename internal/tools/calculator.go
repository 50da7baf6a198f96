package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/haasonsaas/hive/internal/agent"
)

type calculatorArgs struct {
	Operation string  `json:"operation" jsonschema:"required,enum=add,enum=subtract,enum=multiply,enum=divide,description=Arithmetic operation to perform"`
	A         float64 `json:"a" jsonschema:"required,description=First operand"`
	B         float64 `json:"b" jsonschema:"required,description=Second operand"`
}

// NewCalculator returns a tool performing basic arithmetic on two operands.
func NewCalculator() agent.Tool {
	return agent.NewFuncTool(
		"calculator",
		"Performs basic arithmetic (add, subtract, multiply, divide) on two numbers.",
		schemaFor[calculatorArgs](),
		func(ctx context.Context, input json.RawMessage) (any, error) {
			var args calculatorArgs
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}

			var result float64
			switch args.Operation {
			case "add":
				result = args.A + args.B
			case "subtract":
				result = args.A - args.B
			case "multiply":
				result = args.A * args.B
			case "divide":
				if args.B == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				result = args.A / args.B
			default:
				return nil, fmt.Errorf("unknown operation %q", args.Operation)
			}

			if math.IsInf(result, 0) || math.IsNaN(result) {
				return nil, fmt.Errorf("result is not a finite number")
			}
			return map[string]any{"result": result}, nil
		},
	)
}
