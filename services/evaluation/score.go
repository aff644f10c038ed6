// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluation

// EvaluationScore bundles all similarity metrics for one (reference,
// candidate) pair.
//
// BLEU, METEOR, and ROUGE-L are computed over the language-aware
// tokenization; exact match and the Levenshtein ratio over the raw
// strings. Never persisted by the request path; computed on demand over
// stored records.
type EvaluationScore struct {
	BLEU        float64    `json:"bleu"`
	ExactMatch  float64    `json:"exactMatch"`
	Levenshtein float64    `json:"levenshtein"`
	Meteor      float64    `json:"meteor"`
	Rouge       RougeScore `json:"rouge"`
}

// Score computes every metric for a (reference, candidate) pair.
//
// # Description
//
// Both texts are tokenized once with the tokenizer for sourceLanguage
// (unknown languages fall back to the default tokenizer), then all five
// metrics are computed independently over that shared tokenization. No
// metric short-circuits another: a zero exact match still yields the
// partial-credit metrics.
//
// # Inputs
//
//   - reference: Ground-truth text the user accepted or typed.
//   - candidate: The completion under evaluation.
//   - sourceLanguage: Language identifier from the completion record.
//
// # Outputs
//
//   - EvaluationScore: All metrics. Score(x, x, lang) yields exact match
//     1.0 and maximal similarity on every other metric.
func Score(reference, candidate, sourceLanguage string) EvaluationScore {
	refTokens := Tokenize(reference, sourceLanguage)
	candTokens := Tokenize(candidate, sourceLanguage)

	exact := 0.0
	if reference == candidate {
		exact = 1.0
	}

	return EvaluationScore{
		BLEU:        sentenceBLEU(refTokens, candTokens),
		ExactMatch:  exact,
		Levenshtein: levenshteinRatio(reference, candidate),
		Meteor:      meteorScore(refTokens, candTokens),
		Rouge:       rougeL(refTokens, candTokens),
	}
}
