// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_runs_total",
			Help: "Total coordinator task iterations by terminal outcome",
		},
		[]string{"outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "orchestrator_run_duration_seconds",
			Help: "Coordinator task iteration duration in seconds",
		},
		[]string{"outcome"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_steps_total",
			Help: "Total workflow steps executed by step type and terminal status",
		},
		[]string{"step_type", "status"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "orchestrator_step_duration_seconds",
			Help: "Workflow step execution duration in seconds by step type",
		},
		[]string{"step_type"},
	)

	reviewRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_review_retries_total",
			Help: "Total review-stage retry loops triggered by review-failure-handling, by stage",
		},
		[]string{"stage"},
	)
)

// RecordRunComplete records one coordinator task iteration's terminal
// outcome ("done" or "aborted") and its wall-clock duration in seconds.
func RecordRunComplete(outcome string, durationSeconds float64) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordStepComplete records a single workflow step's terminal status and
// duration in seconds.
func RecordStepComplete(stepType, status string, durationSeconds float64) {
	stepsTotal.WithLabelValues(stepType, status).Inc()
	stepDuration.WithLabelValues(stepType).Observe(durationSeconds)
}

// RecordReviewRetry records a review stage looping back to itself after
// review-failure-handling.yaml ran, for the given stage name ("qa",
// "code_review", "security_review", "devops_review").
func RecordReviewRetry(stage string) {
	reviewRetriesTotal.WithLabelValues(stage).Inc()
}
