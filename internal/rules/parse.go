package rules

import (
	"strconv"
	"strings"
)

// Report is a rule as stated in backend text.
type Report struct {
	Description string
	Pattern     string
	// Claimed is the confidence the backend stated, if any. It is kept for
	// diagnostics only; stored confidence comes from observed outcomes.
	Claimed *float64
}

// ParseReported extracts rule reports from backend text. A line
// "RULE: <text>" is a complete report. Blocks of "description:", "pattern:"
// and "confidence:" lines form one report per description. Reports with the
// same normalized description are merged, first wins.
func ParseReported(text string) []Report {
	var (
		out     []Report
		current *Report
		seen    = map[string]bool{}
	)
	flush := func() {
		if current == nil {
			return
		}
		if current.Description == "" {
			current.Description = current.Pattern
		}
		key := Normalize(current.Description)
		if key != "" && !seen[key] {
			seen[key] = true
			out = append(out, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(trimBullet(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.TrimLeft(value, "*` "))
		switch strings.ToLower(strings.Trim(key, "*` ")) {
		case "rule":
			flush()
			current = &Report{Description: value}
			flush()
		case "description":
			flush()
			current = &Report{Description: value}
		case "pattern":
			if current == nil {
				current = &Report{}
			}
			current.Pattern = value
		case "confidence":
			if current == nil {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil {
				if strings.HasSuffix(value, "%") {
					v /= 100
				}
				if v >= 0 && v <= 1 {
					current.Claimed = &v
				}
			}
		}
	}
	flush()
	return out
}

// trimBullet strips list markers such as "- ", "**" or "2. ".
func trimBullet(line string) string {
	line = strings.TrimLeft(strings.TrimSpace(line), "-*#>` ")
	if digits := strings.TrimLeft(line, "0123456789"); len(digits) < len(line) &&
		(strings.HasPrefix(digits, ".") || strings.HasPrefix(digits, ")")) {
		line = digits[1:]
	}
	return strings.TrimLeft(strings.TrimSpace(line), "*` ")
}
