package recognize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedMedication is a medication command extracted from chat or voice text.
type ParsedMedication struct {
	DrugName     string
	DoseQuantity string
	Frequency    string
	TimeSlots    []string // HH:MM:SS
	TargetMember string
}

// Frequency codes, standard prescription shorthand.
const (
	FreqDaily      = "QD"
	FreqTwiceDaily = "BID"
	FreqThreeTimes = "TID"
	FreqFourTimes  = "QID"
)

// Parser is the local keyword parser for medication commands. It never calls
// out anywhere, so it stays available when the remote recognizers are down.
type Parser struct {
	commandPatterns   []*regexp.Regexp
	frequencyKeywords map[string]string
	periodTimes       map[string]string
}

// NewParser creates a new medication command parser.
func NewParser() *Parser {
	return &Parser{
		commandPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^add medication\s+(.+?)(?:\s+for\s+(\S+))?$`),
			regexp.MustCompile(`(?i)^remind me to take\s+(.+)$`),
			regexp.MustCompile(`(?i)^set\s+(.+?)\s+reminder$`),
		},
		frequencyKeywords: map[string]string{
			"once a day":        FreqDaily,
			"once daily":        FreqDaily,
			"every day":         FreqDaily,
			"daily":             FreqDaily,
			"twice a day":       FreqTwiceDaily,
			"twice daily":       FreqTwiceDaily,
			"morning and night": FreqTwiceDaily,
			"three times a day": FreqThreeTimes,
			"three times daily": FreqThreeTimes,
			"with meals":        FreqThreeTimes,
			"four times a day":  FreqFourTimes,
			"four times daily":  FreqFourTimes,
		},
		periodTimes: map[string]string{
			"morning":    "08:00",
			"noon":       "12:00",
			"afternoon":  "14:00",
			"evening":    "18:00",
			"night":      "20:00",
			"bedtime":    "22:00",
			"before bed": "22:00",
		},
	}
}

var (
	clockPattern  = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	hourPattern   = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
	dosagePattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(tablets?|capsules?|pills?|mg|ml|drops?|units?)\b`)
)

// ParseMedication extracts a medication command from text. Returns nil when
// the text does not look like one.
func (p *Parser) ParseMedication(text string) *ParsedMedication {
	text = strings.TrimSpace(text)

	var body, target string
	for _, pattern := range p.commandPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			body = m[1]
			if len(m) > 2 {
				target = m[2]
			}
			break
		}
	}
	if body == "" {
		return nil
	}

	result := &ParsedMedication{TargetMember: target}
	lower := strings.ToLower(body)

	result.Frequency = p.extractFrequency(lower)
	result.DoseQuantity = extractDosage(lower)
	result.TimeSlots = p.extractTimes(lower)
	result.DrugName = p.extractDrugName(body, lower)
	if result.DrugName == "" {
		return nil
	}

	if len(result.TimeSlots) == 0 {
		result.TimeSlots = DefaultSlots(result.Frequency, "")
	}
	return result
}

// DefaultSlots expands a frequency code into its conventional dosing times
// when the user named no explicit times. preferred, when set (HH:MM), seeds
// the single-dose case.
func DefaultSlots(frequency, preferred string) []string {
	switch frequency {
	case FreqTwiceDaily:
		return []string{"08:00:00", "20:00:00"}
	case FreqThreeTimes:
		return []string{"08:00:00", "14:00:00", "20:00:00"}
	case FreqFourTimes:
		return []string{"08:00:00", "12:00:00", "16:00:00", "20:00:00"}
	default:
		if preferred != "" {
			return []string{preferred + ":00"}
		}
		return []string{"08:00:00"}
	}
}

func (p *Parser) extractFrequency(text string) string {
	// Longest keyword wins so "three times a day" beats "a day" style overlap.
	best, bestLen := "", 0
	for keyword, code := range p.frequencyKeywords {
		if strings.Contains(text, keyword) && len(keyword) > bestLen {
			best, bestLen = code, len(keyword)
		}
	}
	if best == "" {
		return FreqDaily
	}
	return best
}

func extractDosage(text string) string {
	if m := dosagePattern.FindStringSubmatch(text); m != nil {
		return m[1] + " " + strings.ToLower(m[2])
	}
	return ""
}

func (p *Parser) extractTimes(text string) []string {
	var times []string
	add := func(slot string) {
		for _, existing := range times {
			if existing == slot {
				return
			}
		}
		times = append(times, slot)
	}

	for _, m := range clockPattern.FindAllStringSubmatch(text, -1) {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		hour = to24h(hour, strings.ToLower(m[3]))
		if hour > 23 || minute > 59 {
			continue
		}
		add(fmt.Sprintf("%02d:%02d:00", hour, minute))
	}
	for _, m := range hourPattern.FindAllStringSubmatch(text, -1) {
		hour, _ := strconv.Atoi(m[1])
		hour = to24h(hour, strings.ToLower(m[2]))
		if hour > 23 {
			continue
		}
		add(fmt.Sprintf("%02d:00:00", hour))
	}
	for period, hhmm := range p.periodTimes {
		if strings.Contains(text, period) {
			add(hhmm + ":00")
		}
	}

	if len(times) > 5 {
		times = times[:5]
	}
	return times
}

func to24h(hour int, ampm string) int {
	if ampm == "pm" && hour != 12 {
		return hour + 12
	}
	if ampm == "am" && hour == 12 {
		return 0
	}
	return hour
}

// extractDrugName strips dosage, frequency, and time phrases from the
// command body and keeps what remains.
func (p *Parser) extractDrugName(body, lower string) string {
	cut := len(lower)
	markers := []string{" at ", " every ", " once ", " twice ", " three times", " four times", " daily", " in the ", " with meals", " before bed"}
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	if idx := dosagePattern.FindStringIndex(lower); idx != nil && idx[0] < cut {
		cut = idx[0]
	}

	name := strings.TrimSpace(body[:cut])
	name = strings.Trim(name, ",.")
	return strings.TrimSpace(name)
}
