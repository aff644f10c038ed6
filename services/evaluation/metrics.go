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

import (
	"math"
	"strings"
)

// =============================================================================
// BLEU
// =============================================================================

// bleuMaxOrder is the n-gram order for sentence BLEU.
const bleuMaxOrder = 4

// sentenceBLEU computes smoothed sentence-level BLEU over token slices.
//
// # Description
//
// Uniform quarter weights over 1..4-grams with add-one smoothing on the
// higher orders (Chen & Cherry method 2), so short completions are not
// zeroed out by an empty 4-gram overlap. A zero unigram overlap still
// yields zero. The brevity penalty is the standard exp(1 - r/c) for
// candidates shorter than the reference.
func sentenceBLEU(reference, candidate []string) float64 {
	if len(candidate) == 0 || len(reference) == 0 {
		if len(candidate) == 0 && len(reference) == 0 {
			return 1.0
		}
		return 0.0
	}

	logSum := 0.0
	for n := 1; n <= bleuMaxOrder; n++ {
		matches, total := clippedNgramMatches(reference, candidate, n)
		var p float64
		if n == 1 {
			if matches == 0 {
				return 0.0
			}
			p = float64(matches) / float64(total)
		} else {
			p = float64(matches+1) / float64(total+1)
		}
		logSum += math.Log(p) / bleuMaxOrder
	}

	bp := 1.0
	if len(candidate) < len(reference) {
		bp = math.Exp(1.0 - float64(len(reference))/float64(len(candidate)))
	}
	return bp * math.Exp(logSum)
}

// clippedNgramMatches counts candidate n-grams, clipped by their
// reference counts, plus the candidate n-gram total.
func clippedNgramMatches(reference, candidate []string, n int) (matches, total int) {
	refCounts := ngramCounts(reference, n)
	for i := 0; i+n <= len(candidate); i++ {
		total++
		gram := strings.Join(candidate[i:i+n], "\x00")
		if refCounts[gram] > 0 {
			refCounts[gram]--
			matches++
		}
	}
	return matches, total
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return counts
}

// =============================================================================
// Levenshtein Ratio
// =============================================================================

// levenshteinRatio computes the normalized indel similarity of two
// strings: (lensum - distance) / lensum, where substitutions cost 2.
//
// Computed over raw strings, not tokens, matching the other edit-distance
// implementations used for completion evaluation. Two empty strings are
// identical (ratio 1).
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	lensum := len(ra) + len(rb)
	if lensum == 0 {
		return 1.0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			sub := prev[j-1]
			if ra[i-1] != rb[j-1] {
				sub += 2
			}
			curr[j] = min(sub, min(prev[j]+1, curr[j-1]+1))
		}
		prev, curr = curr, prev
	}
	return float64(lensum-prev[len(rb)]) / float64(lensum)
}

// =============================================================================
// METEOR
// =============================================================================

// meteorScore computes a code-adapted METEOR over token slices.
//
// # Description
//
// Exact unigram alignment only (no stemming or synonymy; code tokens
// have neither), harmonic mean weighted 9:1 toward recall, and the
// standard fragmentation penalty 0.5 * (chunks / matches)^3. The
// alignment prefers extending the current chunk, which minimizes
// fragmentation for the common mostly-in-order case.
func meteorScore(reference, candidate []string) float64 {
	if len(candidate) == 0 || len(reference) == 0 {
		if len(candidate) == 0 && len(reference) == 0 {
			return 1.0
		}
		return 0.0
	}

	// Reference positions per token.
	refPositions := make(map[string][]int, len(reference))
	for i, tok := range reference {
		refPositions[tok] = append(refPositions[tok], i)
	}

	used := make(map[int]bool, len(reference))
	matches := 0
	chunks := 0
	prevRef := -2
	for _, tok := range candidate {
		positions := refPositions[tok]
		chosen := -1
		// Prefer the position that continues the current chunk.
		for _, pos := range positions {
			if !used[pos] && pos == prevRef+1 {
				chosen = pos
				break
			}
		}
		if chosen < 0 {
			for _, pos := range positions {
				if !used[pos] {
					chosen = pos
					break
				}
			}
		}
		if chosen < 0 {
			prevRef = -2
			continue
		}
		used[chosen] = true
		matches++
		if chosen != prevRef+1 {
			chunks++
		}
		prevRef = chosen
	}

	if matches == 0 {
		return 0.0
	}

	precision := float64(matches) / float64(len(candidate))
	recall := float64(matches) / float64(len(reference))
	fmean := 10 * precision * recall / (recall + 9*precision)
	penalty := 0.5 * math.Pow(float64(chunks)/float64(matches), 3)
	return fmean * (1 - penalty)
}

// =============================================================================
// ROUGE-L
// =============================================================================

// RougeScore is the ROUGE-L precision/recall/F1 triple.
type RougeScore struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// rougeL computes ROUGE-L over token slices via longest common
// subsequence.
func rougeL(reference, candidate []string) RougeScore {
	if len(candidate) == 0 || len(reference) == 0 {
		if len(candidate) == 0 && len(reference) == 0 {
			return RougeScore{Precision: 1, Recall: 1, F1: 1}
		}
		return RougeScore{}
	}

	lcs := lcsLength(reference, candidate)
	precision := float64(lcs) / float64(len(candidate))
	recall := float64(lcs) / float64(len(reference))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return RougeScore{Precision: precision, Recall: recall, F1: f1}
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
		clear(curr)
	}
	return prev[len(b)]
}
