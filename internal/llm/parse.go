package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultLLMConfidence is attached to every parsed recommendation.
const DefaultLLMConfidence = 0.6

// AttentionItem is one position the analysis singled out.
type AttentionItem struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Analysis is the LLM portfolio analysis split into its sections.
type Analysis struct {
	Raw             string          `json:"raw"`
	Assessment      string          `json:"assessment"`
	Strengths       []string        `json:"strengths"`
	Vulnerabilities []string        `json:"vulnerabilities"`
	Attention       []AttentionItem `json:"attention"`
	Rebalancing     []string        `json:"rebalancing"`
	CashDeployment  []string        `json:"cash_deployment"`
}

type section int

const (
	secNone section = iota
	secAssessment
	secStrengths
	secVulnerabilities
	secAttention
	secRebalancing
	secCash
)

var (
	headingPrefix = regexp.MustCompile(`^(#+\s*|\d+[.)]\s*)`)
	numbered      = regexp.MustCompile(`^\d+[.)]\s+`)
	symbolToken   = regexp.MustCompile(`\b[A-Z]{1,5}(?:\.[A-Z])?\b`)
)

// headingOf detects a section heading and returns any text that follows a
// colon on the same line.
func headingOf(line string) (section, string, bool) {
	h := headingPrefix.ReplaceAllString(line, "")
	h = strings.Trim(h, "*_ ")
	rest := ""
	if i := strings.Index(h, ":"); i >= 0 {
		rest = strings.TrimSpace(strings.Trim(h[i+1:], "*_ "))
		h = h[:i]
	}
	h = strings.Trim(h, "*_ ")
	if len(h) > 60 {
		return secNone, "", false
	}
	lower := strings.ToLower(h)
	switch {
	case strings.Contains(lower, "assessment") && strings.Contains(lower, "portfolio"):
		return secAssessment, rest, true
	case strings.Contains(lower, "strength"):
		return secStrengths, rest, true
	case strings.Contains(lower, "vulnerabilit"), strings.Contains(lower, "weakness"):
		return secVulnerabilities, rest, true
	case strings.Contains(lower, "attention") && strings.Contains(lower, "position"):
		return secAttention, rest, true
	case strings.Contains(lower, "rebalancing"):
		return secRebalancing, rest, true
	case strings.Contains(lower, "cash") && strings.Contains(lower, "deploy"):
		return secCash, rest, true
	}
	return secNone, "", false
}

func isBullet(line string) (string, bool) {
	for _, p := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}
	return "", false
}

func isNumbered(line string) (string, bool) {
	if loc := numbered.FindStringIndex(line); loc != nil {
		return strings.TrimSpace(line[loc[1]:]), true
	}
	return "", false
}

// ParseAnalysis splits free text into the known sections by their headings.
// Bullets become list items; continuation lines are appended to the last
// item. Text before the first heading is ignored.
func ParseAnalysis(text string) Analysis {
	a := Analysis{Raw: text}
	var (
		cur          section
		attentionRaw []string
		lists        = map[section]*[]string{
			secStrengths:       &a.Strengths,
			secVulnerabilities: &a.Vulnerabilities,
			secAttention:       &attentionRaw,
			secRebalancing:     &a.Rebalancing,
			secCash:            &a.CashDeployment,
		}
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item, bullet := isBullet(line)
		if !bullet {
			if sec, rest, ok := headingOf(line); ok {
				cur = sec
				if rest != "" {
					if cur == secAssessment {
						a.Assessment = rest
					} else {
						*lists[cur] = append(*lists[cur], rest)
					}
				}
				continue
			}
			item, bullet = isNumbered(line)
		}

		switch cur {
		case secNone:
		case secAssessment:
			if a.Assessment != "" {
				a.Assessment += " "
			}
			a.Assessment += line
		default:
			list := lists[cur]
			switch {
			case bullet:
				*list = append(*list, item)
			case len(*list) > 0 && !strings.HasPrefix(line, "#"):
				(*list)[len(*list)-1] += " " + line
			}
		}
	}

	for _, raw := range attentionRaw {
		head, reason, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		sym := symbolToken.FindString(strings.ToUpper(strings.Trim(head, "*_ ")))
		if sym == "" {
			continue
		}
		a.Attention = append(a.Attention, AttentionItem{Symbol: sym, Reason: strings.TrimSpace(reason)})
	}
	return a
}

var recLine = regexp.MustCompile(
	`^(?:[-*•]\s*|\d+[.)]\s*)?\**\s*((?i:buy|sell|hold))\b\**\s*(?:\([^)]*\))?\s*\**\s*[:\-–]\s*\**\s*([A-Z][A-Z0-9.\-]{0,9})\b\**\s*(?:,\s*(.*))?$`)

// amountLead splits "AMOUNT, RATIONALE"; thousands separators are allowed in
// dollar and share amounts.
var amountLead = regexp.MustCompile(
	`^(\$\d{1,3}(?:,\d{3})+(?:\.\d+)?|\$\d+(?:\.\d+)?|\d+(?:\.\d+)?\s*%[^,]*|\d{1,3}(?:,\d{3})+\s*shares?|\d+(?:\.\d+)?(?:\s*shares?)?)\s*(?:,\s*(.*))?$`)

// ParseRecommendations reads lines shaped like
// "- SELL: AAPL, 25%, trim concentration". The amount is optional and may be
// a percentage, a dollar notional, or a share count.
func ParseRecommendations(text string) []models.Recommendation {
	var out []models.Recommendation
	for _, line := range strings.Split(text, "\n") {
		m := recLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		action, err := models.ParseAction(m[1])
		if err != nil {
			continue
		}
		rec := models.Recommendation{
			Symbol:     m[2],
			Action:     action,
			Confidence: DefaultLLMConfidence,
			Source:     "llm",
		}

		rest := strings.TrimSpace(m[3])
		if am := amountLead.FindStringSubmatch(rest); am != nil && applyAmount(&rec, am[1]) {
			rec.Rationale = strings.TrimSpace(am[2])
		} else {
			rec.Rationale = rest
		}
		out = append(out, rec)
	}
	return out
}

// applyAmount sets the size field matching s and reports whether s was an amount.
func applyAmount(rec *models.Recommendation, s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	switch {
	case strings.Contains(s, "%"):
		pct, _, _ := strings.Cut(s, "%")
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || v <= 0 {
			return false
		}
		rec.Percentage = v
		return true
	case strings.HasPrefix(s, "$"):
		v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
		if err != nil || !v.IsPositive() {
			return false
		}
		rec.Notional = v
		return true
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "shares"), "share"))
	v, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil || !v.IsPositive() {
		return false
	}
	rec.Quantity = v.Floor()
	return true
}
