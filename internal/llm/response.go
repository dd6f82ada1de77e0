package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoCategory is returned when a response names no category.
var ErrNoCategory = errors.New("no category found in response")

// CategoryAnswer is a provider's categorization of one transaction.
type CategoryAnswer struct {
	CategoryID string
	Confidence float64
}

// cleanMarkdownWrapper strips ```json fences and any prose around the outermost JSON value.
func cleanMarkdownWrapper(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s
	}
	return s[start : end+1]
}

// ParseCategoryAnswer reads a {categoryId, confidence} object. It tolerates markdown fences,
// the "category" key, percentages and quoted numbers, and falls back to
// "CATEGORY: x / CONFIDENCE: y" lines.
func ParseCategoryAnswer(content string) (CategoryAnswer, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &raw); err != nil {
		answer, lineErr := parseCategoryLines(content)
		if lineErr != nil {
			return CategoryAnswer{}, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return answer, nil
	}

	return answerFromFields(raw)
}

func answerFromFields(raw map[string]json.RawMessage) (CategoryAnswer, error) {
	var answer CategoryAnswer
	for _, key := range []string{"categoryId", "category_id", "category"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &answer.CategoryID); err != nil {
				return CategoryAnswer{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			break
		}
	}
	answer.CategoryID = strings.TrimSpace(answer.CategoryID)
	if answer.CategoryID == "" {
		return CategoryAnswer{}, ErrNoCategory
	}

	if v, ok := raw["confidence"]; ok {
		conf, err := parseConfidence(strings.Trim(string(v), `"`))
		if err != nil {
			return CategoryAnswer{}, err
		}
		answer.Confidence = conf
	}
	return answer, nil
}

// ParseCategoryAnswers reads a batch reply: an array of objects, or an object with a "results"
// array, each carrying an "id" next to the category fields. Entries without a usable id or
// category are skipped; an empty result is an error.
func ParseCategoryAnswers(content string) (map[string]CategoryAnswer, error) {
	cleaned := cleanMarkdownWrapper(content)

	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var wrapper struct {
			Results []map[string]json.RawMessage `json:"results"`
		}
		if wErr := json.Unmarshal([]byte(cleaned), &wrapper); wErr != nil {
			return nil, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		items = wrapper.Results
	}

	answers := make(map[string]CategoryAnswer, len(items))
	for _, item := range items {
		rawID, ok := item["id"]
		if !ok {
			continue
		}
		id := strings.TrimSpace(strings.Trim(string(rawID), `"`))
		if id == "" {
			continue
		}
		answer, err := answerFromFields(item)
		if err != nil {
			continue
		}
		answers[id] = answer
	}
	if len(answers) == 0 {
		return nil, ErrNoCategory
	}
	return answers, nil
}

func parseCategoryLines(content string) (CategoryAnswer, error) {
	var answer CategoryAnswer
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "CATEGORY:"):
			answer.CategoryID = strings.TrimSpace(line[len("CATEGORY:"):])
		case strings.HasPrefix(upper, "CONFIDENCE:"):
			conf, err := parseConfidence(strings.TrimSpace(line[len("CONFIDENCE:"):]))
			if err != nil {
				return CategoryAnswer{}, err
			}
			answer.Confidence = conf
		}
	}
	if answer.CategoryID == "" {
		return CategoryAnswer{}, ErrNoCategory
	}
	return answer, nil
}

// parseConfidence accepts 0.85, "85%" and 85, always returning a value in [0,1].
func parseConfidence(s string) (float64, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse confidence score %q: %w", s, err)
	}
	if percent || v > 1 {
		v /= 100
	}
	return min(max(v, 0), 1), nil
}
