package compose

import "github.com/pkg/errors"

var (
	// ErrEmptyDescriptor is returned when the descriptor file is blank.
	ErrEmptyDescriptor = errors.New("empty descriptor")

	// ErrInvalidYAML is returned when the descriptor is not valid YAML.
	ErrInvalidYAML = errors.New("invalid yaml")

	// ErrNoServices is returned when the descriptor declares no services.
	ErrNoServices = errors.New("no services declared")

	// ErrMissingSource is returned when a service has neither image nor build.
	ErrMissingSource = errors.New("service has neither image nor build")

	// ErrUnknownCondition is returned for a depends_on condition outside
	// service_started / service_healthy / service_completed_successfully.
	ErrUnknownCondition = errors.New("unknown depends_on condition")

	// ErrUnknownRestartPolicy is returned for a restart value outside
	// no / always / on-failure / unless-stopped.
	ErrUnknownRestartPolicy = errors.New("unknown restart policy")
)
