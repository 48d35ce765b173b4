package agent

import (
	"fmt"
	"strings"
	"unicode"
)

// allowedPrimitives is the rendering contract: every capitalized JSX
// component the generated code references must be declared here. It
// mirrors the component list in the code-synthesis prompt.
var allowedPrimitives = map[string]bool{
	"AreaChart": true, "BarChart": true, "LineChart": true, "PieChart": true,
	"ComposedChart": true, "RadarChart": true, "RadialBarChart": true,
	"Area": true, "Bar": true, "Line": true, "Pie": true, "Cell": true,
	"Scatter": true, "Radar": true, "RadialBar": true,
	"PolarGrid": true, "PolarAngleAxis": true, "PolarRadiusAxis": true,
	"XAxis": true, "YAxis": true, "ZAxis": true, "CartesianGrid": true,
	"ReferenceLine": true, "ReferenceArea": true, "ReferenceDot": true,
	"Tooltip": true, "Legend": true, "Label": true, "LabelList": true,
	"ResponsiveContainer": true, "Brush": true, "ErrorBar": true,
}

// validateCode checks synthesized rendering code against the contract:
// non-empty, no imports, structurally balanced tags, and only declared
// primitives. Rejected code never reaches the session's spec slot.
func validateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("empty code")
	}
	if !strings.HasPrefix(code, "<") {
		return fmt.Errorf("output is not markup")
	}
	if strings.Contains(code, "import ") {
		return fmt.Errorf("code must not contain imports")
	}

	for _, name := range componentTags(code) {
		if !allowedPrimitives[name] {
			return fmt.Errorf("undeclared primitive %s", name)
		}
	}

	if err := checkBalance(code); err != nil {
		return err
	}
	return nil
}

// componentTags extracts the capitalized component names opened in the
// markup. Lowercase tags (div, text, svg) pass through unchecked since
// the renderer accepts plain elements.
func componentTags(code string) []string {
	var out []string
	for i := 0; i < len(code)-1; i++ {
		if code[i] != '<' {
			continue
		}
		j := i + 1
		if j < len(code) && code[j] == '/' {
			j++
		}
		start := j
		for j < len(code) && (unicode.IsLetter(rune(code[j])) || unicode.IsDigit(rune(code[j]))) {
			j++
		}
		name := code[start:j]
		if name != "" && unicode.IsUpper(rune(name[0])) {
			out = append(out, name)
		}
	}
	return out
}

// checkBalance is a cheap structural sanity check: curly braces must
// pair up. Quote-aware parsing is deliberately avoided — JSX text
// routinely contains apostrophes — so only brace depth is tracked,
// which catches truncated output without false positives.
func checkBalance(code string) error {
	depth := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth < 0 {
			return fmt.Errorf("unbalanced braces")
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces")
	}
	return nil
}
