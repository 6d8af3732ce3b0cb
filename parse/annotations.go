package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	ContextPositive = "positive"
	ContextNegative = "negative"
)

const (
	maxAnnotationNameLength = 100
	minAnnotationWeight     = -2.0
	maxAnnotationWeight     = 2.0
)

// Ordered most specific first so the bare inline form can never shadow a
// bracketed tag.
var annotationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<lora:([^>:]+):([0-9]*\.?[0-9]+)>`),
	regexp.MustCompile(`(?i)<lyco:([^>:]+):([0-9]*\.?[0-9]+)>`),
	regexp.MustCompile(`(?i)\((?:lora|lyco):([^():]+):([0-9]*\.?[0-9]+)\)`),
	regexp.MustCompile(`(?i)<lora:([^>:]+)>`),
	regexp.MustCompile(`(?i)\blora:([^:\s]+):([0-9]*\.?[0-9]+)`),
}

var (
	modelFileExtensionPattern  = regexp.MustCompile(`(?i)\.(safetensors|pt|ckpt)$`)
	danglingPunctuationPattern = regexp.MustCompile(`\s+([,.;])`)
)

// Annotation is one accepted inline adapter reference.
type Annotation struct {
	Name     string
	Weight   float64
	Context  string
	Position int
}

type annotationMatch struct {
	offset int
	name   string
	weight float64
}

// NormalizeAnnotationName strips model file extensions and trailing
// punctuation, then folds spaces to underscores.
func NormalizeAnnotationName(name string) string {
	name = modelFileExtensionPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ",.;:!")
	return strings.ReplaceAll(name, " ", "_")
}

// ExtractAnnotations scans one prompt for adapter references. Matches are
// masked out of the text as each pattern runs so a later, less specific
// pattern cannot re-match the same characters. Accepted references are
// numbered 0..n-1 in encounter order within this context; references failing
// name or weight validation are discarded but still removed from the text.
// The second return value is the cleaned prompt used for search indexing.
func ExtractAnnotations(text string, context string) ([]Annotation, string) {
	working := []byte(text)
	var matches []annotationMatch

	for _, pattern := range annotationPatterns {
		for _, location := range pattern.FindAllSubmatchIndex(working, -1) {
			name := string(working[location[2]:location[3]])
			weight := 1.0

			if len(location) >= 6 && location[4] >= 0 {
				parsed, err := strconv.ParseFloat(string(working[location[4]:location[5]]), 64)

				if err == nil {
					weight = parsed
				}
			}

			matches = append(matches, annotationMatch{
				offset: location[0],
				name:   NormalizeAnnotationName(name),
				weight: weight,
			})

			// Mask the matched span, preserving offsets for encounter order
			for i := location[0]; i < location[1]; i++ {
				working[i] = ' '
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].offset < matches[j].offset
	})

	var annotations []Annotation

	for _, match := range matches {
		if !validAnnotation(match.name, match.weight) {
			continue
		}

		annotations = append(annotations, Annotation{
			Name:     match.name,
			Weight:   match.weight,
			Context:  context,
			Position: len(annotations),
		})
	}

	cleaned := spaceRunPattern.ReplaceAllString(string(working), " ")
	cleaned = danglingPunctuationPattern.ReplaceAllString(cleaned, "$1")
	return annotations, strings.TrimSpace(cleaned)
}

func validAnnotation(name string, weight float64) bool {
	length := len([]rune(name))

	if length < 1 || length > maxAnnotationNameLength {
		return false
	}

	return weight >= minAnnotationWeight && weight <= maxAnnotationWeight
}
