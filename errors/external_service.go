package errors

import "fmt"

// ExternalServiceError is returned by the External Service Manager (4.D).
// Reason classifies the failure so callers can decide whether it is
// recoverable (see spec section 7's local-recovery table).
type ExternalServiceError struct {
	ServiceID string
	Reason    string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %s", e.ServiceID, e.Reason)
}

func NewExternalServiceError(serviceID, reason string) error {
	return &ExternalServiceError{ServiceID: serviceID, Reason: reason}
}

// InitializationFailed is returned when a service's init() call fails; the
// service row is left with status=failed.
type InitializationFailed struct {
	ServiceID string
	Err       error
}

func (e *InitializationFailed) Error() string {
	return fmt.Sprintf("initialization failed for service %s: %v", e.ServiceID, e.Err)
}

func (e *InitializationFailed) Unwrap() error { return e.Err }

// StartFailed is returned when a service container fails to start.
type StartFailed struct {
	ServiceID string
	Err       error
}

func (e *StartFailed) Error() string {
	return fmt.Sprintf("start failed for service %s: %v", e.ServiceID, e.Err)
}

func (e *StartFailed) Unwrap() error { return e.Err }

// DecryptionFailed is returned when an encrypted parameter cannot be
// decrypted; this is fatal and never silently recovered (4.B).
type DecryptionFailed struct {
	ServiceID string
	ParamName string
}

func (e *DecryptionFailed) Error() string {
	return fmt.Sprintf("failed to decrypt parameter %q for service %s", e.ParamName, e.ServiceID)
}

// BackupFailed is returned when a backup transitions to failed, including
// the zero-byte-completion case that spec section 4.D mandates converting
// to a failure.
type BackupFailed struct {
	ServiceID string
	BackupID  string
	Reason    string
}

func (e *BackupFailed) Error() string {
	return fmt.Sprintf("backup %s for service %s failed: %s", e.BackupID, e.ServiceID, e.Reason)
}

// ImageNotPullable is returned by the upgrade protocol when the new image
// cannot be pulled; the old container remains untouched.
type ImageNotPullable struct {
	ServiceID string
	Image     string
	Err       error
}

func (e *ImageNotPullable) Error() string {
	return fmt.Sprintf("image %s not pullable for service %s: %v", e.Image, e.ServiceID, e.Err)
}

func (e *ImageNotPullable) Unwrap() error { return e.Err }

// HealthCheckTimeout is returned when a container fails to become healthy
// within the bounded polling window (5.Cancellation and timeouts).
type HealthCheckTimeout struct {
	ServiceID string
	Waited    string
}

func (e *HealthCheckTimeout) Error() string {
	return fmt.Sprintf("service %s did not become healthy after %s", e.ServiceID, e.Waited)
}

// UnknownParameter is returned when create/update is given a parameter key
// the service's schema does not declare.
type UnknownParameter struct {
	ServiceType string
	ParamName   string
}

func (e *UnknownParameter) Error() string {
	return fmt.Sprintf("unknown parameter %q for service type %s", e.ParamName, e.ServiceType)
}

// MissingRequiredParameter is returned when a required parameter is absent.
type MissingRequiredParameter struct {
	ServiceType string
	ParamName   string
}

func (e *MissingRequiredParameter) Error() string {
	return fmt.Sprintf("missing required parameter %q for service type %s", e.ParamName, e.ServiceType)
}
