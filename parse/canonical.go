package parse

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"sd-index/crypto"
)

// floatDigits fixes the significant digits used when serializing floats, so
// the same value always canonicalizes to the same bytes.
const floatDigits = 8

// CanonicalBytes serializes a record deterministically: every non-nil scalar
// field, the four prompt fields (always present), the annotation list and its
// count, with sorted keys and no incidental whitespace. Two source texts that
// differ only cosmetically produce identical bytes here.
func (r *Record) CanonicalBytes() []byte {
	fields := map[string]string{
		"raw_positive":     encodeString(r.RawPositive),
		"raw_negative":     encodeString(r.RawNegative),
		"clean_positive":   encodeString(r.CleanPositive),
		"clean_negative":   encodeString(r.CleanNegative),
		"annotation_count": strconv.Itoa(len(r.Annotations)),
		"annotations":      encodeAnnotations(r.Annotations),
	}

	putString := func(key string, value *string) {
		if value != nil {
			fields[key] = encodeString(*value)
		}
	}
	putInt := func(key string, value *int64) {
		if value != nil {
			fields[key] = strconv.FormatInt(*value, 10)
		}
	}
	putFloat := func(key string, value *float64) {
		if value != nil {
			fields[key] = encodeFloat(*value)
		}
	}

	putString("model_name", r.ModelName)
	putString("model_hash_short", r.ModelHashShort)
	putString("vae", r.VAE)
	putString("vae_hash", r.VAEHash)
	putString("refiner_model", r.RefinerModel)
	putFloat("refiner_switch_at", r.RefinerSwitchAt)
	putInt("steps", r.Steps)
	putString("sampler", r.Sampler)
	putString("scheduler", r.Scheduler)
	putFloat("cfg_scale", r.CfgScale)
	putInt("seed", r.Seed)
	putInt("subseed", r.Subseed)
	putFloat("subseed_strength", r.SubseedStrength)
	putInt("clip_skip", r.ClipSkip)
	putFloat("denoising_strength", r.DenoisingStrength)
	putInt("tiling", r.Tiling)
	putString("face_restoration", r.FaceRestoration)
	putInt("width", r.Width)
	putInt("height", r.Height)
	putString("size_raw", r.SizeRaw)
	putString("hires_upscaler", r.HiresUpscaler)
	putInt("hires_steps", r.HiresSteps)
	putFloat("hires_denoising", r.HiresDenoising)

	keys := make([]string, 0, len(fields))

	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteByte('{')

	for i, key := range keys {
		if i > 0 {
			builder.WriteByte(',')
		}

		builder.WriteString(encodeString(key))
		builder.WriteByte(':')
		builder.WriteString(fields[key])
	}

	builder.WriteByte('}')
	return []byte(builder.String())
}

// SemanticHash hashes the canonical serialization. Equal hashes mean
// re-extraction would write nothing new.
func (r *Record) SemanticHash() string {
	return crypto.HashBytes(r.CanonicalBytes())
}

func encodeAnnotations(annotations []Annotation) string {
	var builder strings.Builder
	builder.WriteByte('[')

	for i, annotation := range annotations {
		if i > 0 {
			builder.WriteByte(',')
		}

		builder.WriteString(`{"context":`)
		builder.WriteString(encodeString(annotation.Context))
		builder.WriteString(`,"name":`)
		builder.WriteString(encodeString(annotation.Name))
		builder.WriteString(`,"position":`)
		builder.WriteString(strconv.Itoa(annotation.Position))
		builder.WriteString(`,"weight":`)
		builder.WriteString(encodeFloat(annotation.Weight))
		builder.WriteByte('}')
	}

	builder.WriteByte(']')
	return builder.String()
}

func encodeString(s string) string {
	encoded, err := json.Marshal(s)

	if err != nil {
		// Marshalling a string cannot fail
		return `""`
	}

	return string(encoded)
}

func encodeFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', floatDigits, 64)
}
