// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command evalreport scores verified completion records offline.
//
// It walks a record store produced by the completion service, scores
// every verified record's predictions against the developer's ground
// truth, and prints aggregate quality metrics as JSON. Runs against a
// store directory directly; the service does not need to be up.
//
// Usage:
//
//	go run ./cmd/evalreport -store ./data/records
//	go run ./cmd/evalreport -store ./data/records -user <user-id>
//	go run ./cmd/evalreport -store ./data/records -by language
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/AleutianAI/AleutianComplete/pkg/logging"
	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/AleutianAI/AleutianComplete/services/evaluation"
)

// aggregate accumulates metric sums for one report bucket.
type aggregate struct {
	Records     int     `json:"records"`
	BLEU        float64 `json:"bleu"`
	ExactMatch  float64 `json:"exactMatch"`
	Levenshtein float64 `json:"levenshtein"`
	Meteor      float64 `json:"meteor"`
	RougeF1     float64 `json:"rougeF1"`
}

func (a *aggregate) add(score evaluation.EvaluationScore) {
	a.Records++
	a.BLEU += score.BLEU
	a.ExactMatch += score.ExactMatch
	a.Levenshtein += score.Levenshtein
	a.Meteor += score.Meteor
	a.RougeF1 += score.Rouge.F1
}

func (a *aggregate) mean() {
	if a.Records == 0 {
		return
	}
	n := float64(a.Records)
	a.BLEU /= n
	a.ExactMatch /= n
	a.Levenshtein /= n
	a.Meteor /= n
	a.RougeF1 /= n
}

// report is the JSON document printed to stdout.
type report struct {
	Scanned  int                   `json:"scanned"`
	Verified int                   `json:"verified"`
	Buckets  map[string]*aggregate `json:"buckets"`
}

func main() {
	storePath := flag.String("store", "./data/records", "BadgerDB record store directory")
	user := flag.String("user", "", "Restrict the report to one user identity")
	groupBy := flag.String("by", "language", "Report bucket: language, arm, or model")
	flag.Parse()

	// Reports go to stdout; logging stays on stderr.
	logger := logging.Setup(logging.Config{Service: "evalreport", Output: os.Stderr})
	defer logger.Close()

	cfg := store.DefaultConfig()
	cfg.Path = *storePath
	cfg.ReadOnly = true

	recordStore, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer recordStore.Close()

	out := report{Buckets: make(map[string]*aggregate)}

	err = recordStore.ForEach(context.Background(), *user,
		func(_, _ string, record *datatypes.CompletionRecord) error {
			out.Scanned++
			if !record.Verified() || record.GroundTruth == nil {
				return nil
			}
			out.Verified++
			truth := *record.GroundTruth

			for model, prediction := range record.Predictions {
				score := evaluation.Score(truth, prediction, record.Language)
				key := bucketKey(*groupBy, record, model)
				agg := out.Buckets[key]
				if agg == nil {
					agg = &aggregate{}
					out.Buckets[key] = agg
				}
				agg.add(score)
			}
			return nil
		})
	if err != nil {
		log.Fatalf("Failed to scan records: %v", err)
	}

	for _, agg := range out.Buckets {
		agg.mean()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
}

// bucketKey selects the aggregation bucket for one scored prediction.
func bucketKey(groupBy string, record *datatypes.CompletionRecord, model string) string {
	switch groupBy {
	case "arm":
		return string(record.Arm)
	case "model":
		return model
	case "language":
		return record.Language
	default:
		return fmt.Sprintf("%s/%s", record.Language, model)
	}
}
