package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	negativeHeaderPattern = regexp.MustCompile(`(?i)^Negative prompt:\s*(.*)$`)
	keyValuePattern       = regexp.MustCompile(`^([A-Za-z0-9 _\-/]+?):\s*(.+)$`)
	sizePattern           = regexp.MustCompile(`^(\d{2,5})[xX](\d{2,5})$`)
	integerPattern        = regexp.MustCompile(`^\d+$`)
	decimalPattern        = regexp.MustCompile(`^\d+\.?\d*$`)
	spaceRunPattern       = regexp.MustCompile(`\s+`)
)

// keyAliases maps normalized parameter keys to canonical field keys. Keys
// already in canonical form pass through fieldKinds directly.
var keyAliases = map[string]string{
	"model":                    "model_name",
	"hash":                     "model_hash_short",
	"model_hash":               "model_hash_short",
	"cfg":                      "cfg_scale",
	"variation_seed":           "subseed",
	"variation_seed_strength":  "subseed_strength",
	"hires_denoising_strength": "hires_denoising",
	"hires_upscale_strength":   "hires_denoising",
}

type fieldKind int

const (
	fieldString fieldKind = iota
	fieldInt
	fieldFloat
	fieldBool
	fieldSize
)

var fieldKinds = map[string]fieldKind{
	"model_name":         fieldString,
	"model_hash_short":   fieldString,
	"vae":                fieldString,
	"vae_hash":           fieldString,
	"refiner_model":      fieldString,
	"refiner_switch_at":  fieldFloat,
	"steps":              fieldInt,
	"sampler":            fieldString,
	"scheduler":          fieldString,
	"cfg_scale":          fieldFloat,
	"seed":               fieldInt,
	"subseed":            fieldInt,
	"subseed_strength":   fieldFloat,
	"clip_skip":          fieldInt,
	"denoising_strength": fieldFloat,
	"tiling":             fieldBool,
	"width":              fieldInt,
	"height":             fieldInt,
	"size":               fieldSize,
	"hires_upscaler":     fieldString,
	"hires_steps":        fieldInt,
	"hires_denoising":    fieldFloat,
	"face_restoration":   fieldString,
}

// TokenKind tags the structured result of matching one parameter token.
type TokenKind int

const (
	TokenString TokenKind = iota
	TokenInt
	TokenFloat
	TokenBool
	TokenSize
	// TokenIgnored marks tokens that matched no recognized field or failed
	// numeric coercion. They are carried, not dropped, so callers can see
	// what the grammar skipped.
	TokenIgnored
)

// Token is the tagged result of matching a single `key: value` token.
type Token struct {
	Kind   TokenKind
	Key    string
	Raw    string
	Str    string
	Int    int64
	Float  float64
	Width  int64
	Height int64
}

// Params holds every scalar generation parameter the grammar recognizes.
// Nil means the source text never mentioned the field.
type Params struct {
	ModelName         *string
	ModelHashShort    *string
	VAE               *string
	VAEHash           *string
	RefinerModel      *string
	RefinerSwitchAt   *float64
	Steps             *int64
	Sampler           *string
	Scheduler         *string
	CfgScale          *float64
	Seed              *int64
	Subseed           *int64
	SubseedStrength   *float64
	ClipSkip          *int64
	DenoisingStrength *float64
	Tiling            *int64
	FaceRestoration   *string
	Width             *int64
	Height            *int64
	SizeRaw           *string
	HiresUpscaler     *string
	HiresSteps        *int64
	HiresDenoising    *float64
}

// Record is the full parsed form of one embedded parameter block.
type Record struct {
	Params
	RawPositive   string
	RawNegative   string
	CleanPositive string
	CleanNegative string
	Annotations   []Annotation
}

// NormalizeKey lowers a raw parameter key and folds separator styles so
// "CFG scale", "cfg-scale" and "cfg_scale" all land on the same canonical key.
func NormalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.ReplaceAll(key, "__", " ")
	key = spaceRunPattern.ReplaceAllString(strings.TrimSpace(key), " ")
	key = strings.ReplaceAll(key, " ", "_")

	if alias, found := keyAliases[key]; found {
		return alias
	}

	return key
}

// MatchToken classifies a single comma-separated token. It is a pure
// function: every token maps to exactly one tagged variant.
func MatchToken(raw string) Token {
	token := Token{Kind: TokenIgnored, Raw: raw}
	match := keyValuePattern.FindStringSubmatch(raw)

	if match == nil {
		return token
	}

	key := NormalizeKey(match[1])
	value := strings.TrimSpace(match[2])
	kind, recognized := fieldKinds[key]

	if !recognized {
		return token
	}

	token.Key = key

	switch kind {
	case fieldInt:
		if !integerPattern.MatchString(value) {
			return Token{Kind: TokenIgnored, Raw: raw}
		}

		parsed, err := strconv.ParseInt(value, 10, 64)

		if err != nil {
			return Token{Kind: TokenIgnored, Raw: raw}
		}

		token.Kind = TokenInt
		token.Int = parsed

	case fieldFloat:
		if !decimalPattern.MatchString(value) {
			return Token{Kind: TokenIgnored, Raw: raw}
		}

		parsed, err := strconv.ParseFloat(value, 64)

		if err != nil {
			return Token{Kind: TokenIgnored, Raw: raw}
		}

		token.Kind = TokenFloat
		token.Float = parsed

	case fieldBool:
		token.Kind = TokenBool
		token.Int = 0

		switch strings.ToLower(value) {
		case "true", "1", "yes":
			token.Int = 1
		}

	case fieldSize:
		sizeMatch := sizePattern.FindStringSubmatch(value)

		if sizeMatch == nil {
			return Token{Kind: TokenIgnored, Raw: raw}
		}

		// The bounds of sizePattern make these parses infallible
		token.Kind = TokenSize
		token.Width, _ = strconv.ParseInt(sizeMatch[1], 10, 64)
		token.Height, _ = strconv.ParseInt(sizeMatch[2], 10, 64)
		token.Str = value

	default:
		token.Kind = TokenString
		token.Str = value
	}

	return token
}

// TokenizeParams splits the trailing parameter segment into tagged tokens.
func TokenizeParams(segment string) []Token {
	if strings.TrimSpace(segment) == "" {
		return nil
	}

	var tokens []Token

	for _, raw := range strings.Split(segment, ",") {
		raw = strings.TrimSpace(raw)

		if raw == "" {
			continue
		}

		tokens = append(tokens, MatchToken(raw))
	}

	return tokens
}

func (p *Params) apply(tokens []Token) {
	for _, token := range tokens {
		switch token.Kind {
		case TokenIgnored:
			continue

		case TokenSize:
			width, height, sizeRaw := token.Width, token.Height, token.Str
			p.Width = &width
			p.Height = &height
			p.SizeRaw = &sizeRaw

		case TokenInt, TokenBool:
			value := token.Int
			p.intField(token.Key, &value)

		case TokenFloat:
			value := token.Float
			p.floatField(token.Key, &value)

		case TokenString:
			value := token.Str
			p.stringField(token.Key, &value)
		}
	}

	if p.Width != nil && p.Height != nil && p.SizeRaw == nil {
		sizeRaw := fmt.Sprintf("%dx%d", *p.Width, *p.Height)
		p.SizeRaw = &sizeRaw
	}
}

func (p *Params) intField(key string, value *int64) {
	switch key {
	case "steps":
		p.Steps = value
	case "seed":
		p.Seed = value
	case "subseed":
		p.Subseed = value
	case "clip_skip":
		p.ClipSkip = value
	case "width":
		p.Width = value
	case "height":
		p.Height = value
	case "hires_steps":
		p.HiresSteps = value
	case "tiling":
		p.Tiling = value
	}
}

func (p *Params) floatField(key string, value *float64) {
	switch key {
	case "cfg_scale":
		p.CfgScale = value
	case "subseed_strength":
		p.SubseedStrength = value
	case "denoising_strength":
		p.DenoisingStrength = value
	case "hires_denoising":
		p.HiresDenoising = value
	case "refiner_switch_at":
		p.RefinerSwitchAt = value
	}
}

func (p *Params) stringField(key string, value *string) {
	switch key {
	case "model_name":
		p.ModelName = value
	case "model_hash_short":
		p.ModelHashShort = value
	case "vae":
		p.VAE = value
	case "vae_hash":
		p.VAEHash = value
	case "refiner_model":
		p.RefinerModel = value
	case "sampler":
		p.Sampler = value
	case "scheduler":
		p.Scheduler = value
	case "face_restoration":
		p.FaceRestoration = value
	case "hires_upscaler":
		p.HiresUpscaler = value
	}
}

// splitSections divides the raw block into the positive prompt, the negative
// prompt and the trailing comma-separated parameter segment. With no
// "Negative prompt:" header the whole text is positive.
func splitSections(raw string) (positive string, negative string, paramSegment string) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n")
	negativeIndex := -1

	for i, line := range lines {
		if negativeHeaderPattern.MatchString(line) {
			negativeIndex = i
			break
		}
	}

	if negativeIndex == -1 {
		return strings.TrimSpace(strings.Join(lines, "\n")), "", ""
	}

	positive = strings.TrimSpace(strings.Join(lines[:negativeIndex], "\n"))
	rest := lines[negativeIndex:]

	var negativeLines []string
	match := negativeHeaderPattern.FindStringSubmatch(rest[0])

	if match != nil {
		negativeLines = append(negativeLines, match[1])
	}

	i := 1

	for i < len(rest) {
		line := rest[i]

		if strings.TrimSpace(line) == "" {
			i++
			break
		}

		// A dense key:value run marks the start of the parameter segment
		if strings.Count(line, ":") >= 3 && strings.Contains(line, ", ") {
			break
		}

		negativeLines = append(negativeLines, line)
		i++
	}

	var paramLines []string

	for i < len(rest) {
		line := rest[i]
		paramLines = append(paramLines, line)

		if strings.Count(line, ":") >= 3 && !strings.HasSuffix(strings.TrimRight(line, " \t"), ",") {
			break
		}

		i++
	}

	negative = strings.TrimSpace(strings.Join(negativeLines, "\n"))
	paramSegment = strings.TrimSpace(strings.Join(paramLines, " "))
	return positive, negative, paramSegment
}

// ParseMetadataBlock parses one embedded parameter block into a structured
// record. Returns nil when the text holds nothing parseable.
func ParseMetadataBlock(raw string) *Record {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	positive, negative, paramSegment := splitSections(raw)

	record := &Record{
		RawPositive: positive,
		RawNegative: negative,
	}

	record.apply(TokenizeParams(paramSegment))

	positiveAnnotations, cleanPositive := ExtractAnnotations(positive, ContextPositive)
	negativeAnnotations, cleanNegative := ExtractAnnotations(negative, ContextNegative)

	record.CleanPositive = cleanPositive
	record.CleanNegative = cleanNegative
	record.Annotations = append(positiveAnnotations, negativeAnnotations...)

	return record
}

// DeriveRawText resolves stored metadata into a parseable parameter block.
// JSON objects are probed for the first plausible embedded block; anything
// else is used verbatim. Returns "" when there is nothing to parse.
func DeriveRawText(metadata string) string {
	text := strings.TrimSpace(metadata)

	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		var decoded any

		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return text
		}

		if candidate := findCandidateBlock(decoded); candidate != "" {
			return candidate
		}
	}

	return text
}

// findCandidateBlock walks a decoded JSON value looking for a string that
// resembles a generation parameter block. Map keys are visited in sorted
// order so the result never depends on map iteration.
func findCandidateBlock(value any) string {
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)

		if strings.Contains(trimmed, "Steps:") && (strings.Contains(trimmed, "Sampler:") || strings.Count(trimmed, ":") >= 5) {
			return trimmed
		}

	case []any:
		for _, item := range typed {
			if candidate := findCandidateBlock(item); candidate != "" {
				return candidate
			}
		}

	case map[string]any:
		keys := make([]string, 0, len(typed))

		for key := range typed {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			if candidate := findCandidateBlock(typed[key]); candidate != "" {
				return candidate
			}
		}
	}

	return ""
}
