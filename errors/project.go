package errors

import "fmt"

// ProjectError is returned by the Project & Env-Var Service (4.F).
type ProjectError struct {
	ProjectID string
	Reason    string
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("project %s: %s", e.ProjectID, e.Reason)
}

// EnvVarNotResolved is returned when get_environment_variable_value finds
// no binding for the key in any scope.
type EnvVarNotResolved struct {
	ProjectID string
	Key       string
}

func (e *EnvVarNotResolved) Error() string {
	return fmt.Sprintf("no value for env var %q in project %s", e.Key, e.ProjectID)
}

// InvalidDeploymentConfig is returned when resource bounds are violated
// (cpu_request <= cpu_limit, memory_request <= memory_limit, replicas >= 1).
type InvalidDeploymentConfig struct {
	Reason string
}

func (e *InvalidDeploymentConfig) Error() string {
	return fmt.Sprintf("invalid deployment config: %s", e.Reason)
}

// SlugConflict is returned when a unique slug could not be generated after
// exhausting the retry scheme (6 then 8 char suffixes).
type SlugConflict struct {
	Requested string
}

func (e *SlugConflict) Error() string {
	return fmt.Sprintf("could not generate a unique slug for %q", e.Requested)
}
