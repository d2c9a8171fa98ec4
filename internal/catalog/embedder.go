// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package catalog

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Attribute weights for feature hashing. Families dominate the scent
// profile, notes refine it, brand and free text only nudge it.
var attributeWeights = map[string]float64{
	"families":  1.0,
	"notes":     0.6,
	"seasons":   0.3,
	"occasions": 0.3,
	"brand":     0.2,
}

const textWeight = 0.1

// HashingEmbedder produces deterministic embeddings by hashing attribute
// tokens into a fixed number of signed buckets. It stands in for a learned
// text embedding model: identical input always yields an identical unit
// vector, and items sharing families and notes land close together.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder producing vectors of length dim.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim < 1 {
		dim = 64
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension implements recommend.EmbeddingGenerator.
func (h *HashingEmbedder) Dimension() int {
	return h.dim
}

// Embed implements recommend.EmbeddingGenerator.
func (h *HashingEmbedder) Embed(ctx context.Context, input recommend.EmbedInput) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Text == "" && len(input.Attributes) == 0 {
		return nil, errors.New("embed: empty input")
	}

	vec := make([]float64, h.dim)

	keys := make([]string, 0, len(input.Attributes))
	for k := range input.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		w, ok := attributeWeights[key]
		if !ok {
			w = textWeight
		}
		for _, tok := range input.Attributes[key] {
			h.add(vec, key+":"+strings.ToLower(strings.TrimSpace(tok)), w)
		}
	}
	for _, tok := range tokenize(input.Text) {
		h.add(vec, "text:"+tok, textWeight)
	}

	vectormath.NormalizeInPlace(vec)
	return vec, nil
}

// add hashes token into a bucket with a hash-derived sign.
func (h *HashingEmbedder) add(vec []float64, token string, w float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(token))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if (sum>>63)&1 == 1 {
		w = -w
	}
	vec[idx] += w
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ItemInput builds the embedding input for an item.
func ItemInput(item *recommend.Item) recommend.EmbedInput {
	attrs := map[string][]string{
		"families":  item.Families,
		"notes":     item.Notes,
		"seasons":   item.Seasons,
		"occasions": item.Occasions,
	}
	if item.Brand != "" {
		attrs["brand"] = []string{item.Brand}
	}
	return recommend.EmbedInput{Text: item.Name, Attributes: attrs}
}

var _ recommend.EmbeddingGenerator = (*HashingEmbedder)(nil)
