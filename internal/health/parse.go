package health

import (
	"regexp"
	"strconv"
	"strings"
)

// Parser extracts vitals from quick-log chat text such as
// "blood pressure 120 80" or "weight 62.5 kg".
type Parser struct {
	metricKeywords map[string][]string
}

// NewParser creates a new vitals parser.
func NewParser() *Parser {
	return &Parser{
		metricKeywords: map[string][]string{
			"blood_pressure": {"blood pressure", "bp", "血壓"},
			"blood_sugar":    {"blood sugar", "glucose", "sugar", "血糖"},
			"blood_oxygen":   {"blood oxygen", "oxygen", "spo2", "血氧"},
			"temperature":    {"temperature", "temp", "fever", "體溫"},
			"weight":         {"weight", "weigh", "體重"},
		},
	}
}

var numberPattern = regexp.MustCompile(`(\d+\.?\d*)`)

// Parse reads one quick-log line into a Log. Returns nil when the text
// names no known metric or carries no usable number.
func (p *Parser) Parse(text string) *Log {
	text = strings.ToLower(strings.TrimSpace(text))

	metric := p.metricType(text)
	if metric == "" {
		return nil
	}

	// Strip the metric keywords before extracting readings so the digit in
	// "spo2" does not get read as a value.
	for _, kw := range p.metricKeywords[metric] {
		text = strings.ReplaceAll(text, kw, " ")
	}

	numbers := numberPattern.FindAllString(text, -1)
	if len(numbers) == 0 {
		return nil
	}

	log := &Log{}
	switch metric {
	case "blood_pressure":
		// Needs both readings, "120/80" or "120 80".
		if len(numbers) < 2 {
			return nil
		}
		sys, err1 := strconv.Atoi(numbers[0])
		dia, err2 := strconv.Atoi(numbers[1])
		if err1 != nil || err2 != nil {
			return nil
		}
		log.Systolic = &sys
		log.Diastolic = &dia
	case "blood_sugar":
		v, err := strconv.ParseFloat(numbers[0], 64)
		if err != nil {
			return nil
		}
		log.BloodSugar = &v
	case "blood_oxygen":
		v, err := strconv.ParseFloat(numbers[0], 64)
		if err != nil {
			return nil
		}
		log.BloodOxygen = &v
	case "temperature":
		v, err := strconv.ParseFloat(numbers[0], 64)
		if err != nil {
			return nil
		}
		log.Temperature = &v
	case "weight":
		v, err := strconv.ParseFloat(numbers[0], 64)
		if err != nil {
			return nil
		}
		log.Weight = &v
	}

	if !log.HasVitals() {
		return nil
	}
	return log
}

func (p *Parser) metricType(text string) string {
	// Longest keyword first so "blood pressure" wins over bare "blood".
	best := ""
	bestLen := 0
	for metric, keywords := range p.metricKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) && len(kw) > bestLen {
				best = metric
				bestLen = len(kw)
			}
		}
	}
	return best
}
