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
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/store"
)

// backupsBucket is the single shared bucket every backup is written into
// (see DESIGN.md, "S3 bucket naming").
const backupsBucket = "temps-backups"

// backupTimestampLayout matches the object-key format {subpath}/{engine}_backup_{YYYYMMDD_HHMMSS}.tar.
const backupTimestampLayout = "20060102_150405"

// S3Source is the S3-compatible endpoint backups are stored to/from. It
// is independent of any S3 *service* this manager runs - the backup
// target is operator-configured infrastructure, not a tenant resource.
type S3Source struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

func (src S3Source) client() (*s3.S3, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(src.Endpoint),
		Region:           aws.String(src.Region),
		Credentials:      credentials.NewStaticCredentials(src.AccessKey, src.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating s3 session: %w", err)
	}
	return s3.New(sess), nil
}

// dumpPipeline produces a service-specific logical dump of a running
// container's data, to be tarred and uploaded. Postgres uses pg_dump,
// Redis triggers a BGSAVE and copies the RDB file, S3 is out of scope for
// self-backup (its data already lives in object storage).
func (m *Manager) dumpPipeline(ctx context.Context, svc *store.ExternalService, params map[string]string) ([]byte, error) {
	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ctlerrors.ErrNotFound
	}

	switch svc.ServiceType {
	case store.ServiceTypePostgres:
		cmd := []string{"pg_dump", "-U", params["username"], "-d", params["database"], "-F", "c"}
		return m.docker.Exec(ctx, containerID, cmd, nil)
	case store.ServiceTypeRedis:
		if _, err := m.docker.Exec(ctx, containerID, []string{"redis-cli", "-a", params["password"], "BGSAVE"}, nil); err != nil {
			return nil, err
		}
		return m.docker.Exec(ctx, containerID, []string{"cat", "/data/dump.rdb"}, nil)
	default:
		return nil, fmt.Errorf("backup not supported for service type %s", svc.ServiceType)
	}
}

// BackupToS3 runs the backup_to_s3 contract: insert-first/commit-last so
// an in-progress backup is always observable, a zero-byte completion is
// treated as a failure.
func (m *Manager) BackupToS3(ctx context.Context, svc store.ExternalService, src S3Source, subpath string) (*store.ExternalServiceBackup, error) {
	backupID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("error generating backup id: %w", err)
	}

	row := &store.ExternalServiceBackup{
		ServiceID:  svc.ID,
		BackupID:   backupID,
		BackupType: store.BackupTypeFull,
		State:      store.BackupStateRunning,
		StartedAt:  time.Now(),
	}
	row, err = m.store.CreateBackup(ctx, row)
	if err != nil {
		return nil, err
	}

	key, size, err := m.runBackup(ctx, &svc, src, subpath, backupID)
	now := time.Now()
	row.FinishedAt = &now
	if err != nil {
		row.State = store.BackupStateFailed
		_, _ = m.store.UpdateBackup(ctx, row)
		return nil, &ctlerrors.BackupFailed{ServiceID: svc.ID.String(), BackupID: backupID, Reason: err.Error()}
	}
	if size == 0 {
		row.State = store.BackupStateFailed
		_, _ = m.store.UpdateBackup(ctx, row)
		return nil, &ctlerrors.BackupFailed{ServiceID: svc.ID.String(), BackupID: backupID, Reason: "backup produced zero bytes"}
	}

	row.State = store.BackupStateCompleted
	row.SizeBytes = size
	row.S3Location = key
	return m.store.UpdateBackup(ctx, row)
}

// dumpFileName is the canonical on-disk name of a service's dump file
// inside the backup tar, matching the name the engine itself uses for
// that artifact.
func dumpFileName(kind store.ServiceType) string {
	switch kind {
	case store.ServiceTypeRedis:
		return "dump.rdb"
	default:
		return "pg_dump.dump"
	}
}

func (m *Manager) runBackup(ctx context.Context, svc *store.ExternalService, src S3Source, subpath, backupID string) (key string, size int64, err error) {
	params, err := m.resolvedParams(ctx, svc.ID)
	if err != nil {
		return "", 0, err
	}
	dump, err := m.dumpPipeline(ctx, svc, params)
	if err != nil {
		return "", 0, err
	}
	if len(dump) == 0 {
		return "", 0, nil
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	hdr := &tar.Header{Name: dumpFileName(svc.ServiceType), Mode: 0o600, Size: int64(len(dump)), ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return "", 0, err
	}
	if _, err := tw.Write(dump); err != nil {
		return "", 0, err
	}
	if err := tw.Close(); err != nil {
		return "", 0, err
	}

	cli, err := src.client()
	if err != nil {
		return "", 0, err
	}
	objectKey := fmt.Sprintf("%s_backup_%s.tar", svc.ServiceType, time.Now().UTC().Format(backupTimestampLayout))
	if subpath != "" {
		objectKey = subpath + "/" + objectKey
	}
	if _, err := cli.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(backupsBucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(tarBuf.Bytes()),
	}); err != nil {
		return "", 0, fmt.Errorf("error uploading backup: %w", err)
	}
	return objectKey, int64(tarBuf.Len()), nil
}

// RestoreFromS3 downloads and extracts a backup, stops the target
// container, and hands the dump to restorePipeline, whose per-engine order
// decides when it is written and when the container is started and waited
// on (Redis: written before start; Postgres: restored after a healthy start).
func (m *Manager) RestoreFromS3(ctx context.Context, svc *store.ExternalService, s3Key string, src S3Source) error {
	cli, err := src.client()
	if err != nil {
		return err
	}
	obj, err := cli.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(backupsBucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		return fmt.Errorf("error downloading backup: %w", err)
	}
	defer obj.Body.Close()

	tr := tar.NewReader(obj.Body)
	hdr, err := tr.Next()
	if err != nil {
		return fmt.Errorf("error reading backup archive: %w", err)
	}
	dump := make([]byte, hdr.Size)
	if _, err := io.ReadFull(tr, dump); err != nil {
		return fmt.Errorf("error reading backup payload: %w", err)
	}

	params, err := m.resolvedParams(ctx, svc.ID)
	if err != nil {
		return err
	}

	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return err
	}
	if info == nil {
		return ctlerrors.ErrNotFound
	}

	if err := m.docker.StopContainer(ctx, containerID, containerStopTimeout); err != nil {
		return err
	}
	return m.restorePipeline(ctx, svc, params, containerID, dump)
}

// restorePipeline materializes dump into containerID's data volume and
// brings the container back up, dispatching on service type the same way
// dumpPipeline does. Redis loads dump.rdb from disk at startup, so its
// file is written before the container starts; Postgres needs a live
// server to run pg_restore against, so its file is written and restored
// after the container is healthy again.
func (m *Manager) restorePipeline(ctx context.Context, svc *store.ExternalService, params map[string]string, containerID string, dump []byte) error {
	switch svc.ServiceType {
	case store.ServiceTypeRedis:
		if err := m.docker.CopyToContainer(ctx, containerID, "/data", dump, 0o600, "dump.rdb"); err != nil {
			return fmt.Errorf("writing restore payload: %w", err)
		}
		if err := m.docker.StartContainer(ctx, containerID); err != nil {
			return err
		}
		return m.docker.WaitHealthy(ctx, containerID, healthCheckMaxWait)
	case store.ServiceTypePostgres:
		if err := m.docker.StartContainer(ctx, containerID); err != nil {
			return err
		}
		if err := m.docker.WaitHealthy(ctx, containerID, healthCheckMaxWait); err != nil {
			return err
		}
		if err := m.docker.CopyToContainer(ctx, containerID, "/tmp", dump, 0o600, "restore.pgdump"); err != nil {
			return fmt.Errorf("writing restore payload: %w", err)
		}
		cmd := []string{"pg_restore", "-U", params["username"], "-d", params["database"], "--clean", "--if-exists", "/tmp/restore.pgdump"}
		_, err := m.docker.Exec(ctx, containerID, cmd, nil)
		if err != nil {
			return fmt.Errorf("error restoring postgres dump: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("restore not supported for service type %s", svc.ServiceType)
	}
}
