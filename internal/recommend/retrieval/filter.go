// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/tomtom215/scentmatch/internal/cache"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// defaultProgramCacheSize bounds the compiled expression cache.
const defaultProgramCacheSize = 512

// CELFilter compiles and evaluates item filter expressions. Compiled
// programs are cached by expression text. It is safe for concurrent use.
type CELFilter struct {
	env      *cel.Env
	programs *cache.LRU[cel.Program]
}

// NewCELFilter creates a filter with a program cache of the given size.
func NewCELFilter(cacheSize int) (*CELFilter, error) {
	if cacheSize < 1 {
		cacheSize = defaultProgramCacheSize
	}
	env, err := cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &CELFilter{
		env:      env,
		programs: cache.NewLRU[cel.Program](cacheSize, time.Hour),
	}, nil
}

// Compile returns the program for expr. Errors wrap recommend.ErrInvalidFilter.
func (f *CELFilter) Compile(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if prg, ok := f.programs.Get(expr); ok {
		return prg, nil
	}

	ast, issues := f.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", recommend.ErrInvalidFilter, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", recommend.ErrInvalidFilter, out)
	}
	prg, err := f.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recommend.ErrInvalidFilter, err)
	}
	f.programs.Set(expr, prg)
	return prg, nil
}

// Match evaluates prg against item.
func (f *CELFilter) Match(prg cel.Program, item *recommend.Item) (bool, error) {
	out, _, err := prg.Eval(map[string]any{"item": itemVars(item)})
	if err != nil {
		return false, fmt.Errorf("%w: %v", recommend.ErrInvalidFilter, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression returned %T", recommend.ErrInvalidFilter, out.Value())
	}
	return b, nil
}

// Validate compiles expr without evaluating it.
func (f *CELFilter) Validate(expr string) error {
	_, err := f.Compile(expr)
	return err
}

// MatchExpression compiles expr, using the program cache, and evaluates it
// against item. It implements recommend.ExpressionMatcher.
func (f *CELFilter) MatchExpression(expr string, item *recommend.Item) (bool, error) {
	prg, err := f.Compile(expr)
	if err != nil {
		return false, err
	}
	return f.Match(prg, item)
}

var _ recommend.ExpressionMatcher = (*CELFilter)(nil)

// itemVars exposes item fields to CEL. Tag lists are lowercased so that
// membership tests are case-insensitive.
func itemVars(item *recommend.Item) map[string]any {
	vars := map[string]any{
		"id":             item.ID,
		"name":           item.Name,
		"brand":          item.Brand,
		"families":       lowerAll(item.Families),
		"notes":          lowerAll(item.Notes),
		"seasons":        lowerAll(item.Seasons),
		"occasions":      lowerAll(item.Occasions),
		"popularity":     item.Popularity,
		"trend_score":    item.TrendScore,
		"rating_average": item.RatingAverage,
		"rating_count":   int64(item.RatingCount),
		"launched_year":  int64(0),
	}
	if !item.LaunchedAt.IsZero() {
		vars["launched_year"] = int64(item.LaunchedAt.Year())
	}
	return vars
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
