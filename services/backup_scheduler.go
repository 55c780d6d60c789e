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

package services

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/temps-platform/control-plane/store"
)

// BackupScheduler runs backup_to_s3 for every eligible external service on
// a cron schedule, supplementing the on-demand backup path the manager
// exposes directly (original_source's externalsvc maintenance loops,
// distilled out of the functional spec).
type BackupScheduler struct {
	manager *Manager
	source  S3Source
	log     *slog.Logger
	cron    *cron.Cron
}

// NewBackupScheduler builds a scheduler that is not yet running; call Start.
func NewBackupScheduler(manager *Manager, source S3Source, log *slog.Logger) *BackupScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &BackupScheduler{manager: manager, source: source, log: log, cron: cron.New()}
}

// Schedule registers a cron spec (standard 5-field crontab syntax) that
// triggers a backup pass over every running service of kind. An empty
// kind schedules every service type.
func (s *BackupScheduler) Schedule(spec string, kind store.ServiceType) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runPass(context.Background(), kind)
	})
	return err
}

func (s *BackupScheduler) Start() { s.cron.Start() }

func (s *BackupScheduler) Stop() context.Context { return s.cron.Stop() }

func (s *BackupScheduler) runPass(ctx context.Context, kind store.ServiceType) {
	services, err := s.manager.store.ListExternalServices(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "error listing services for scheduled backup", "error", err)
		return
	}
	for _, svc := range services {
		if kind != "" && svc.ServiceType != kind {
			continue
		}
		if svc.Status != store.ServiceStatusRunning {
			continue
		}
		if _, err := s.manager.BackupToS3(ctx, svc, s.source, "scheduled"); err != nil {
			s.log.ErrorContext(ctx, "scheduled backup failed", "service_id", svc.ID, "error", err)
		}
	}
}
