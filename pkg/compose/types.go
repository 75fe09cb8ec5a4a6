// Package compose loads the compose-style deployment descriptor into an
// immutable service graph, decoupled from compose-go's own types.
package compose

import (
	"sort"
	"time"
)

// Condition is what a dependent requires from a dependency before it may start.
type Condition string

const (
	ConditionStarted               Condition = "service_started"
	ConditionHealthy               Condition = "service_healthy"
	ConditionCompletedSuccessfully Condition = "service_completed_successfully"
)

// RestartPolicy controls what happens when a service process exits.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// BuildConfig points at the build source for a service image.
type BuildConfig struct {
	Context    string `json:"context"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// HealthCheck describes the recurring probe for a service.
//
// Test keeps the compose CMD / CMD-SHELL form; HTTP and TCP are accepted as
// additional probe kinds (the launcher's own readiness checks).
type HealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	StartPeriod time.Duration `json:"start_period"`

	// SuccessThreshold is how many consecutive successes are needed before
	// the service counts as healthy (x-success-threshold, default 1).
	SuccessThreshold int `json:"success_threshold"`
}

// Service is a single service declaration from the descriptor.
type Service struct {
	Name          string               `json:"name"`
	ContainerName string               `json:"container_name,omitempty"`
	Image         string               `json:"image,omitempty"`
	Build         *BuildConfig         `json:"build,omitempty"`
	Command       []string             `json:"command,omitempty"`
	WorkingDir    string               `json:"working_dir,omitempty"`
	EnvFiles      []string             `json:"env_files,omitempty"`
	Environment   map[string]string    `json:"environment,omitempty"`
	Restart       RestartPolicy        `json:"restart"`
	Health        *HealthCheck         `json:"healthcheck,omitempty"`
	DependsOn     map[string]Condition `json:"depends_on,omitempty"`
}

// RuntimeName is the public name of the service's runtime instance.
func (s *Service) RuntimeName() string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return s.Name
}

// Network is the shared network configuration. It is read-only for services.
type Network struct {
	Name       string `json:"name"`
	EnableIPv6 bool   `json:"enable_ipv6"`
}

// Project is the parsed deployment graph: the full set of services plus the
// network they share. It is built once at load time and never mutated.
type Project struct {
	Name     string              `json:"name"`
	Services map[string]*Service `json:"services"`
	Network  Network             `json:"network"`
}

// ServiceNames returns the declared service names in sorted order.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
