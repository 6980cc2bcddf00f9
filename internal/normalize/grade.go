package normalize

import "strings"

// GradeRule maps a substring pattern to a canonical grade label.
type GradeRule struct {
	Pattern string
	Label   string
}

// List order is the priority: compound terms precede the generic terms
// they contain.
var gradeRules = []GradeRule{
	{"9급", "9급"},
	{"8급", "8급"},
	{"7급", "7급"},
	{"6급", "6급"},
	{"5급", "5급"},
	{"청년인턴", "인턴"},
	{"인턴", "인턴"},
	{"전문연구원", "전문연구원"},
	{"선임연구원", "선임연구원"},
	{"책임연구원", "책임연구원"},
	{"연구원", "연구원"},
	{"공무직", "공무직"},
	{"전문임기제", "전문직"},
	{"전문직", "전문직"},
	{"기능직", "기능직"},
	{"임기제", "임기제"},
	{"무기계약직", "무기계약직"},
	{"계약직", "계약직"},
	{"경력채용", "경력직"},
	{"경력경쟁", "경력직"},
	{"운전", "운전직"},
	{"서기보", "서기보"},
	{"안전관리", "안전관리"},
	{"사무관", "사무관"},
	{"주무관", "주무관"},
	{"연구사", "연구사"},
	{"기술직", "기술직"},
	{"사회복무요원", "사회복무요원"},
}

// GradeRules returns a copy of the rule table in priority order.
func GradeRules() []GradeRule {
	out := make([]GradeRule, len(gradeRules))
	copy(out, gradeRules)
	return out
}

// ResolveGrade scans each text in turn and returns the label of the first
// rule that matches. Later texts are only consulted when earlier ones yield
// nothing. Returns Unknown if no text matches.
func ResolveGrade(texts ...string) string {
	for _, t := range texts {
		if g := gradeFromText(t); g != "" {
			return g
		}
	}
	return Unknown
}

func gradeFromText(text string) string {
	text = Clean(text)
	if text == "" {
		return ""
	}
	for _, r := range gradeRules {
		if strings.Contains(text, r.Pattern) {
			return r.Label
		}
	}
	return ""
}
