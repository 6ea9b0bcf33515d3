package utils

import (
	"fmt"
	"math"
	"regexp"
	"time"

	goeval "github.com/edisonguo/govaluate"

	"github.com/earthscan/tsprofile/timeseries"
)

// BandExpressions holds parsed per-observation expressions over band
// variables b1..bN and the date-scope variables doy and decimalYear.
type BandExpressions struct {
	ExprText    []string
	Expressions []*goeval.EvaluableExpression
	VarList     []string
	ExprVarRef  [][]string
}

var bandVarRe = regexp.MustCompile(`^b[1-9]\d*$`)

var scopeVars = map[string]struct{}{
	"doy":         {},
	"decimalYear": {},
}

// ParseBandExpressions parses and validates a list of expressions. Variables
// must be band references or date-scope names.
func ParseBandExpressions(exprs []string) (*BandExpressions, error) {
	out := &BandExpressions{ExprText: exprs}
	seen := map[string]struct{}{}

	for _, text := range exprs {
		expr, err := goeval.NewEvaluableExpression(text)
		if err != nil {
			return nil, fmt.Errorf("parse '%v' error: %v", text, err)
		}

		var refs []string
		for _, token := range expr.Tokens() {
			if token.Kind != goeval.VARIABLE {
				continue
			}
			varName, ok := token.Value.(string)
			if !ok {
				return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
			}
			if _, found := scopeVars[varName]; !found && !bandVarRe.MatchString(varName) {
				return nil, fmt.Errorf("variable %v is not supported; valid variables are b1..bN, doy, decimalYear", varName)
			}
			refs = append(refs, varName)
			if _, found := seen[varName]; !found {
				seen[varName] = struct{}{}
				out.VarList = append(out.VarList, varName)
			}
		}

		out.Expressions = append(out.Expressions, expr)
		out.ExprVarRef = append(out.ExprVarRef, refs)
	}
	return out, nil
}

// EvalProfile evaluates every expression for every observation of a profile.
// The result is one row per observation with one entry per expression; an
// entry is nil when a referenced band was null for that observation.
func (be *BandExpressions) EvalProfile(p *timeseries.TemporalProfile) ([][]*float64, error) {
	out := make([][]*float64, p.Len())

	for i := 0; i < p.Len(); i++ {
		scope := map[string]interface{}{}
		if t, ok := parseISO(p.Dates[i]); ok {
			scope["doy"] = float64(t.YearDay())
			scope["decimalYear"] = timeseries.DecimalYear(t)
		}
		for bi, v := range p.Values[i] {
			if v != nil {
				scope[fmt.Sprintf("b%d", bi+1)] = *v
			}
		}

		row := make([]*float64, len(be.Expressions))
		for ix, expr := range be.Expressions {
			usable := true
			for _, ref := range be.ExprVarRef[ix] {
				if _, found := scope[ref]; !found {
					usable = false
					break
				}
			}
			if !usable {
				continue
			}

			result, err := expr.Evaluate(scope)
			if err != nil {
				return nil, fmt.Errorf("eval '%v' error: %v", be.ExprText[ix], err)
			}
			value, ok := toFloat(result)
			if !ok {
				return nil, fmt.Errorf("failed to cast eval result '%v' to float, %v", result, be.ExprText[ix])
			}
			if !math.IsNaN(value) && !math.IsInf(value, 0) {
				row[ix] = &value
			}
		}
		out[i] = row
	}
	return out, nil
}

func parseISO(value string) (time.Time, bool) {
	t, err := time.ParseInLocation(timeseries.ISOFormat, value, time.UTC)
	return t, err == nil
}

func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
