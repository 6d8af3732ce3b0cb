package parse

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestSemanticHashStable(t *testing.T) {
	first := ParseMetadataBlock(webuiBlock)
	second := ParseMetadataBlock(webuiBlock)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.SemanticHash(), second.SemanticHash())
}

func TestSemanticHashInvariantToTokenReordering(t *testing.T) {
	reordered := "cat, dog\nNegative prompt: blurry\nModel: foo, Size: 512x512, Seed: 42, CFG scale: 7, Sampler: Euler a, Steps: 20"

	original := ParseMetadataBlock(webuiBlock)
	shuffled := ParseMetadataBlock(reordered)

	require.NotNil(t, original)
	require.NotNil(t, shuffled)
	assert.Equal(t, original.SemanticHash(), shuffled.SemanticHash())
}

func TestSemanticHashInvariantToParameterWhitespace(t *testing.T) {
	spaced := "cat, dog\nNegative prompt: blurry\nSteps:   20,   Sampler:  Euler a, CFG scale: 7, Seed: 42, Size: 512x512, Model: foo"

	original := ParseMetadataBlock(webuiBlock)
	loose := ParseMetadataBlock(spaced)

	require.NotNil(t, original)
	require.NotNil(t, loose)
	assert.Equal(t, original.SemanticHash(), loose.SemanticHash())
}

func TestSemanticHashChangesWithMeaning(t *testing.T) {
	changed := ParseMetadataBlock(strings.Replace(webuiBlock, "Seed: 42", "Seed: 43", 1))
	original := ParseMetadataBlock(webuiBlock)

	require.NotNil(t, original)
	require.NotNil(t, changed)
	assert.NotEqual(t, original.SemanticHash(), changed.SemanticHash())
}

func TestSemanticHashIncludesAnnotations(t *testing.T) {
	with := ParseMetadataBlock("a cat <lora:styleA:0.8>\nNegative prompt: bad\nSteps: 20, Sampler: DDIM, Seed: 1, CFG scale: 7")
	without := ParseMetadataBlock("a cat <lora:styleA:0.9>\nNegative prompt: bad\nSteps: 20, Sampler: DDIM, Seed: 1, CFG scale: 7")

	require.NotNil(t, with)
	require.NotNil(t, without)
	assert.NotEqual(t, with.SemanticHash(), without.SemanticHash())
}

func TestCanonicalBytesDeterministicLayout(t *testing.T) {
	record := &Record{
		RawPositive:   "cat",
		CleanPositive: "cat",
	}

	blob := string(record.CanonicalBytes())

	assert.Equal(t, string(record.CanonicalBytes()), blob)
	assert.NotContains(t, blob, ": ")
	assert.NotContains(t, blob, ", ")

	// Omitted scalars are absent, prompt fields always present
	assert.NotContains(t, blob, "steps")
	assert.Contains(t, blob, `"raw_negative":""`)
	assert.Contains(t, blob, `"annotation_count":0`)
}

func TestEncodeFloatFixedDigits(t *testing.T) {
	assert.Equal(t, "0.8", encodeFloat(0.8))
	assert.Equal(t, "7", encodeFloat(7))
	assert.Equal(t, "0.33333333", encodeFloat(1.0/3.0))
}
