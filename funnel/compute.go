// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package funnel

import "time"

// StepDefinition is one funnel step: its display order and event name.
type StepDefinition struct {
	Order     int
	EventName string
}

// SessionEvent is the (session_id, earliest matching timestamp) pair a
// step's SQL query returns for every session with at least one matching
// event. Computing the per-session minimum is the caller's job (done in
// SQL via MIN(timestamp) GROUP BY session_id); this package only consumes
// the result.
type SessionEvent struct {
	SessionID string
	Timestamp time.Time
}

// StepResult is one step's computed metrics.
type StepResult struct {
	StepOrder                     int
	EventName                     string
	Completions                   int
	ConversionRate                float64
	DropOffRate                   float64
	AverageTimeToCompleteSeconds  float64
}

// FunnelMetrics is the full computed result for a funnel over a date range.
type FunnelMetrics struct {
	TotalEntries                  int
	Steps                         []StepResult
	OverallConversionRate         float64
	AverageCompletionTimeSeconds  float64
}

// Compute implements the funnel step-completion algorithm: a session
// completes step i iff it has an event matching step i whose timestamp is
// >= the session's earliest qualifying event for step i-1. stepEvents must
// be parallel to steps, each entry holding every session's earliest
// matching-event timestamp for that step (not yet filtered against
// previous steps — Compute does that).
func Compute(steps []StepDefinition, stepEvents [][]SessionEvent) FunnelMetrics {
	if len(steps) == 0 {
		return FunnelMetrics{}
	}

	qualifiedByStep := make([]map[string]time.Time, len(steps))
	for i, events := range stepEvents {
		earliest := earliestPerSession(events)
		if i == 0 {
			qualifiedByStep[i] = earliest
			continue
		}
		previous := qualifiedByStep[i-1]
		qualified := make(map[string]time.Time, len(earliest))
		for sessionID, ts := range earliest {
			prevTS, ok := previous[sessionID]
			if !ok {
				continue
			}
			if ts.Before(prevTS) {
				continue
			}
			qualified[sessionID] = ts
		}
		qualifiedByStep[i] = qualified
	}

	totalEntries := len(qualifiedByStep[0])
	results := make([]StepResult, len(steps))
	previousCompletions := totalEntries

	for i, step := range steps {
		completions := len(qualifiedByStep[i])

		var conversionRate float64
		if previousCompletions > 0 {
			conversionRate = float64(completions) / float64(previousCompletions) * 100
		}
		dropOffRate := 100 - conversionRate

		var avgTime float64
		if i > 0 && completions > 0 {
			var sum float64
			var count int
			previous := qualifiedByStep[i-1]
			for sessionID, ts := range qualifiedByStep[i] {
				prevTS, ok := previous[sessionID]
				if !ok {
					continue
				}
				d := ts.Sub(prevTS).Seconds()
				if d < 0 {
					continue
				}
				sum += d
				count++
			}
			if count > 0 {
				avgTime = sum / float64(count)
			}
		}

		results[i] = StepResult{
			StepOrder:                    step.Order,
			EventName:                    step.EventName,
			Completions:                  completions,
			ConversionRate:               conversionRate,
			DropOffRate:                  dropOffRate,
			AverageTimeToCompleteSeconds: avgTime,
		}
		previousCompletions = completions
	}

	lastStep := qualifiedByStep[len(qualifiedByStep)-1]
	finalCompletions := len(lastStep)
	var overallConversion float64
	if totalEntries > 0 {
		overallConversion = float64(finalCompletions) / float64(totalEntries) * 100
	}

	var overallAvgTime float64
	if finalCompletions > 0 {
		firstStep := qualifiedByStep[0]
		var sum float64
		var count int
		for sessionID, endTS := range lastStep {
			startTS, ok := firstStep[sessionID]
			if !ok {
				continue
			}
			d := endTS.Sub(startTS).Seconds()
			if d < 0 {
				continue
			}
			sum += d
			count++
		}
		if count > 0 {
			overallAvgTime = sum / float64(count)
		}
	}

	return FunnelMetrics{
		TotalEntries:                 totalEntries,
		Steps:                        results,
		OverallConversionRate:        overallConversion,
		AverageCompletionTimeSeconds: overallAvgTime,
	}
}

// earliestPerSession reduces a step's raw matching events to one entry per
// session holding the earliest timestamp, mirroring the SQL-side
// MIN(timestamp) GROUP BY session_id a real query performs.
func earliestPerSession(events []SessionEvent) map[string]time.Time {
	out := make(map[string]time.Time, len(events))
	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		existing, ok := out[e.SessionID]
		if !ok || e.Timestamp.Before(existing) {
			out[e.SessionID] = e.Timestamp
		}
	}
	return out
}
