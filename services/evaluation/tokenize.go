// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluation scores a (ground truth, chosen completion) pair with
// a bundle of similarity metrics over a language-aware tokenization.
//
// The pipeline is pure and stateless. It runs offline over stored
// completion records, never in the request path.
package evaluation

import (
	"regexp"
	"strings"
)

// =============================================================================
// Tokenizers
// =============================================================================

// Tokenizer splits source code into comparison tokens.
//
// Splitting happens on string and comment literals, multi-character
// operators, whitespace, and any remaining non-word character. String
// and comment literals survive as single tokens so a completed string is
// compared as a unit.
type Tokenizer func(code string) []string

// hashPattern tokenizes languages with #-comments (python and friends).
var hashPattern = regexp.MustCompile(
	`'''(?s:.*?)'''|"""(?s:.*?)"""|"(?s:.*?)"|'(?s:.*?)'|#[^\n]*|!=|\*\*|<<|>>|==|>=|<=| +|\W`)

// slashPattern tokenizes languages with //-comments (the C family, java,
// javascript, php, go).
var slashPattern = regexp.MustCompile(
	"`(?s:.*?)`|\"(?s:.*?)\"|'(?s:.*?)'|/\\*(?s:.*?)\\*/|//[^\n]*|#[^\n]*|!=|<<|>>|==|>=|<=|&&|\\|\\||->|=>|\\+\\+|--| +|\\W")

// splitKeepingSeparators splits code on the pattern, keeping the matched
// separators as tokens and dropping whitespace-only pieces.
func splitKeepingSeparators(pattern *regexp.Regexp, code string) []string {
	var tokens []string
	emit := func(s string) {
		if s != "" && strings.TrimSpace(s) != "" {
			tokens = append(tokens, s)
		}
	}

	last := 0
	for _, loc := range pattern.FindAllStringIndex(code, -1) {
		emit(code[last:loc[0]])
		emit(code[loc[0]:loc[1]])
		last = loc[1]
	}
	emit(code[last:])
	return tokens
}

func tokenizeHashLang(code string) []string {
	return splitKeepingSeparators(hashPattern, code)
}

func tokenizeSlashLang(code string) []string {
	return splitKeepingSeparators(slashPattern, code)
}

// tokenizers maps language identifiers to their tokenizer.
var tokenizers = map[string]Tokenizer{
	"python":      tokenizeHashLang,
	"ruby":        tokenizeHashLang,
	"shellscript": tokenizeHashLang,
	"java":        tokenizeSlashLang,
	"javascript":  tokenizeSlashLang,
	"typescript":  tokenizeSlashLang,
	"php":         tokenizeSlashLang,
	"go":          tokenizeSlashLang,
	"c":           tokenizeSlashLang,
	"cpp":         tokenizeSlashLang,
	"csharp":      tokenizeSlashLang,
	"rust":        tokenizeSlashLang,
}

// Tokenize splits code using the tokenizer for the given language.
//
// An unknown language falls back to the default (python-style) tokenizer
// rather than failing.
func Tokenize(code, language string) []string {
	tok, ok := tokenizers[strings.ToLower(language)]
	if !ok {
		tok = tokenizeHashLang
	}
	return tok(code)
}
