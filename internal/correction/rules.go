package correction

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

const (
	MsgSelectPrinted = "Please select whether the receipt was printed"
	MsgMobile        = "Please enter a valid 10 digit mobile number"
	MsgTraderCode    = "Please enter a valid trader code"
	MsgTraderName    = "Please enter a valid trader name"
)

// Field formats shared by the rule expressions and the page script.
const (
	PatternMobile     = `^[0-9]{10}$`
	PatternTraderCode = `^[0-9]+$`
	PatternNameDigit  = `[0-9]`
)

// Rule is one submission gate. Expr is a CEL expression over the map
// variable `row` that evaluates to true when the gate rejects the row.
type Rule struct {
	Name    string
	Expr    string
	Message string
}

// DefaultRules returns the gates in evaluation order: the printed choice,
// then the "No" checks on whatever was entered, then the "Yes" checks where
// mobile and trader code are required unless marked not available.
func DefaultRules() []Rule {
	mobileOK := `row.mobile.matches('` + PatternMobile + `')`
	codeOK := `row.code.matches('` + PatternTraderCode + `')`
	nameHasDigit := `row.name.matches('` + PatternNameDigit + `')`
	return []Rule{
		{Name: "printed_selected", Expr: `!(row.printed in ['Yes', 'No'])`, Message: MsgSelectPrinted},

		{Name: "no_mobile_format", Message: MsgMobile,
			Expr: `row.printed == 'No' && row.mobile != '' && !row.mobile_disabled && !row.mobile_na && !` + mobileOK},
		{Name: "no_trader_code_format", Message: MsgTraderCode,
			Expr: `row.printed == 'No' && row.code != '' && !row.code_disabled && !row.code_na && !` + codeOK},
		{Name: "no_trader_name_digits", Message: MsgTraderName,
			Expr: `row.printed == 'No' && row.name != '' && ` + nameHasDigit},
		{Name: "no_trader_name_required", Message: MsgTraderName,
			Expr: `row.printed == 'No' && row.code != '' && !row.code_na && row.name == ''`},

		{Name: "yes_mobile_format", Message: MsgMobile,
			Expr: `row.printed == 'Yes' && !row.mobile_disabled && !row.mobile_na && !` + mobileOK},
		{Name: "yes_trader_code_format", Message: MsgTraderCode,
			Expr: `row.printed == 'Yes' && !row.code_disabled && !row.code_na && !` + codeOK},
		{Name: "yes_trader_name_digits", Message: MsgTraderName,
			Expr: `row.printed == 'Yes' && !row.code_na && ` + nameHasDigit},
		{Name: "yes_trader_name_required", Message: MsgTraderName,
			Expr: `row.printed == 'Yes' && !row.code_na && row.code != '' && row.name == ''`},
	}
}

// ValidationError is the first gate a row failed.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type compiledRule struct {
	Rule
	program cel.Program
}

// Validator evaluates an ordered rule set. It is safe for concurrent use.
type Validator struct {
	rules []compiledRule
}

var programCache sync.Map

var newRulesEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)))
}

func NewValidator(rules []Rule) (*Validator, error) {
	if len(rules) == 0 {
		return nil, errors.New("correction: no rules")
	}
	v := &Validator{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if strings.TrimSpace(r.Message) == "" {
			return nil, fmt.Errorf("correction: rule %q: message required", r.Name)
		}
		p, err := loadOrCompile(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("correction: rule %q: %w", r.Name, err)
		}
		v.rules = append(v.rules, compiledRule{Rule: r, program: p})
	}
	return v, nil
}

// MustDefaultValidator panics if the built-in rules fail to compile.
func MustDefaultValidator() *Validator {
	v, err := NewValidator(DefaultRules())
	if err != nil {
		panic(err)
	}
	return v
}

func loadOrCompile(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := programCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRulesEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.New("expression must evaluate to bool")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	programCache.Store(expr, program)
	return program, nil
}

// Check runs the gates in order against view and returns the first
// failure as a *ValidationError. Evaluation errors are returned as-is.
func (v *Validator) Check(view map[string]any) error {
	for _, r := range v.rules {
		out, _, err := r.program.Eval(map[string]any{"row": view})
		if err != nil {
			return fmt.Errorf("correction: rule %q: %w", r.Name, err)
		}
		violated, ok := out.Value().(bool)
		if !ok {
			return fmt.Errorf("correction: rule %q: non-bool result", r.Name)
		}
		if violated {
			return &ValidationError{Rule: r.Name, Message: r.Message}
		}
	}
	return nil
}

// Names lists the rules in evaluation order.
func (v *Validator) Names() []string {
	out := make([]string, 0, len(v.rules))
	for _, r := range v.rules {
		out = append(out, r.Name)
	}
	return out
}

// PageRules is the rule metadata embedded in the correction page. The page
// script runs the gates in Order and alerts with Messages[name].
type PageRules struct {
	Order         []string          `json:"order"`
	Messages      map[string]string `json:"messages"`
	Patterns      map[string]string `json:"patterns"`
	ProvideMobile string            `json:"provide_mobile"`
}

func (v *Validator) PageRules() PageRules {
	out := PageRules{
		Order:    v.Names(),
		Messages: make(map[string]string, len(v.rules)),
		Patterns: map[string]string{
			"mobile":      PatternMobile,
			"trader_code": PatternTraderCode,
			"name_digit":  PatternNameDigit,
		},
		ProvideMobile: MsgProvideMobile,
	}
	for _, r := range v.rules {
		out.Messages[r.Name] = r.Message
	}
	return out
}
