package openaiagent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
)

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any
	Call       func(ctx context.Context, arguments map[string]any) (string, error)
}

func (t Tool) param() openai.ChatCompletionToolUnionParam {
	function := shared.FunctionDefinitionParam{
		Name: t.Name,
	}

	if t.Description != "" {
		function.Description = openai.String(t.Description)
	}

	if t.Parameters != nil {
		function.Parameters = shared.FunctionParameters(t.Parameters)
	}

	return openai.ChatCompletionFunctionTool(function)
}

// Calculator evaluates arithmetic with + - * / and parentheses.
func Calculator() Tool {
	return Tool{
		Name:        "calculator",
		Description: "Evaluate a simple arithmetic expression.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The expression to evaluate, for example (6+1)*6",
				},
			},
			"required": []string{"expression"},
		},
		Call: func(_ context.Context, arguments map[string]any) (string, error) {
			expr, _ := arguments["expression"].(string)
			v, err := Evaluate(expr)
			if err != nil {
				return "Invalid expression.", nil
			}
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		},
	}
}

// Evaluate computes the value of an arithmetic expression.
func Evaluate(expr string) (float64, error) {
	p := &exprParser{input: expr}
	v, err := p.sum()
	if err != nil {
		return 0, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos], p.pos)
	}

	return v, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) sum() (float64, error) {
	v, err := p.product()
	if err != nil {
		return 0, err
	}

	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return v, nil
		}
		p.pos++

		rhs, err := p.product()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *exprParser) product() (float64, error) {
	v, err := p.factor()
	if err != nil {
		return 0, err
	}

	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return v, nil
		}
		p.pos++

		rhs, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			v *= rhs
			continue
		}
		if rhs == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		v /= rhs
	}
}

func (p *exprParser) factor() (float64, error) {
	switch c := p.peek(); {
	case c == '-':
		p.pos++
		v, err := p.factor()
		return -v, err
	case c == '(':
		p.pos++
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case c == '.' || (c >= '0' && c <= '9'):
		start := p.pos
		for p.pos < len(p.input) && strings.IndexByte("0123456789.", p.input[p.pos]) >= 0 {
			p.pos++
		}
		return strconv.ParseFloat(p.input[start:p.pos], 64)
	case c == 0:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
	}
}
