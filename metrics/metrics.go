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

// Package metrics exposes Prometheus collectors for the control plane's two
// busiest subsystems: external service lifecycle operations and git
// provider API calls, following the same operation/scope counter-pair
// shape the teacher uses for its own github client (metrics/github.go).
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace        = "temps"
	metricsGitProviderSubsys = "git_provider"
	metricsServiceSubsys     = "external_service"
	metricsQueueSubsys       = "queue"
)

var (
	GitProviderOperationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsGitProviderSubsys,
		Name:      "operations_total",
		Help:      "Total number of git provider operation attempts",
	}, []string{"provider", "operation"})

	GitProviderOperationFailedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsGitProviderSubsys,
		Name:      "errors_total",
		Help:      "Total number of failed git provider operation attempts",
	}, []string{"provider", "operation"})

	ServiceOperationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsServiceSubsys,
		Name:      "operations_total",
		Help:      "Total number of external service lifecycle operation attempts",
	}, []string{"service_type", "operation"})

	ServiceOperationFailedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsServiceSubsys,
		Name:      "errors_total",
		Help:      "Total number of failed external service lifecycle operations",
	}, []string{"service_type", "operation"})

	QueueJobsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsQueueSubsys,
		Name:      "jobs_sent_total",
		Help:      "Total number of jobs sent to the queue",
	}, []string{"kind"})

	QueueJobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsQueueSubsys,
		Name:      "jobs_processed_total",
		Help:      "Total number of jobs consumed from the queue",
	}, []string{"kind", "outcome"})
)

// RegisterMetrics registers all collectors with the default registry.
func RegisterMetrics() error {
	collectors := []prometheus.Collector{
		GitProviderOperationCount,
		GitProviderOperationFailedCount,
		ServiceOperationCount,
		ServiceOperationFailedCount,
		QueueJobsSent,
		QueueJobsProcessed,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
