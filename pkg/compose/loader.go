package compose

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Compose healthcheck defaults, applied when the descriptor leaves them out.
const (
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeTimeout     = 30 * time.Second
	DefaultProbeRetries     = 3
	DefaultSuccessThreshold = 1
)

// successThresholdKey is the descriptor extension carrying the number of
// consecutive probe successes required before a service counts as healthy.
const successThresholdKey = "x-success-threshold"

// LoadFile reads and parses a descriptor file.
func LoadFile(path, projectName string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read descriptor")
	}
	return Load(string(b), projectName)
}

// Load parses descriptor YAML into an immutable Project. It is a pure
// function: no files are resolved, no paths touched.
func Load(content, projectName string) (*Project, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDescriptor
	}
	if projectName == "" {
		projectName = "stack"
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil || dict == nil {
		return nil, errors.Wrap(ErrInvalidYAML, "parse descriptor")
	}

	proj, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: []byte(content), Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, true)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory load: nothing to normalize or extend. Consistency
		// (unknown depends_on targets, missing image/build) is our own
		// pre-flight so the errors carry the launcher's taxonomy.
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipConsistencyCheck = true
		opts.ResolvePaths = false
	})
	if err != nil {
		return nil, errors.Wrap(err, "load descriptor")
	}

	if len(proj.Services) == 0 {
		return nil, ErrNoServices
	}

	out := &Project{
		Name:     projectName,
		Services: make(map[string]*Service, len(proj.Services)),
	}

	for name, svc := range proj.Services {
		converted, err := convertService(name, svc)
		if err != nil {
			return nil, err
		}
		out.Services[converted.Name] = converted
	}

	out.Network = convertNetworks(proj.Networks)

	return out, nil
}

func convertService(name string, svc types.ServiceConfig) (*Service, error) {
	if svc.Name != "" {
		name = svc.Name
	}

	if svc.Image == "" && svc.Build == nil {
		return nil, errors.Wrapf(ErrMissingSource, "service %q", name)
	}

	restart, err := convertRestart(name, svc.Restart)
	if err != nil {
		return nil, err
	}

	health, err := convertHealthCheck(name, svc.HealthCheck)
	if err != nil {
		return nil, err
	}

	dependsOn, err := convertDependsOn(name, svc.DependsOn)
	if err != nil {
		return nil, err
	}

	out := &Service{
		Name:          name,
		ContainerName: svc.ContainerName,
		Image:         svc.Image,
		Command:       append([]string{}, svc.Command...),
		WorkingDir:    svc.WorkingDir,
		Environment:   map[string]string{},
		Restart:       restart,
		Health:        health,
		DependsOn:     dependsOn,
	}

	if svc.Build != nil {
		out.Build = &BuildConfig{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
		}
	}

	for _, ef := range svc.EnvFiles {
		out.EnvFiles = append(out.EnvFiles, ef.Path)
	}

	for k, v := range svc.Environment {
		if v != nil {
			out.Environment[k] = *v
		}
	}

	return out, nil
}

func convertRestart(name, restart string) (RestartPolicy, error) {
	switch RestartPolicy(restart) {
	case "":
		return RestartNo, nil
	case RestartNo, RestartAlways, RestartOnFailure, RestartUnlessStopped:
		return RestartPolicy(restart), nil
	default:
		return "", errors.Wrapf(ErrUnknownRestartPolicy, "service %q: %q", name, restart)
	}
}

func convertHealthCheck(name string, hc *types.HealthCheckConfig) (*HealthCheck, error) {
	if hc == nil || hc.Disable {
		return nil, nil
	}
	if len(hc.Test) > 0 && strings.EqualFold(hc.Test[0], "NONE") {
		return nil, nil
	}
	if len(hc.Test) == 0 {
		return nil, errors.Errorf("service %q: healthcheck missing test", name)
	}

	out := &HealthCheck{
		Test:             append([]string{}, hc.Test...),
		Interval:         DefaultProbeInterval,
		Timeout:          DefaultProbeTimeout,
		Retries:          DefaultProbeRetries,
		SuccessThreshold: DefaultSuccessThreshold,
	}
	if hc.Interval != nil {
		out.Interval = time.Duration(*hc.Interval)
	}
	if hc.Timeout != nil {
		out.Timeout = time.Duration(*hc.Timeout)
	}
	if hc.StartPeriod != nil {
		out.StartPeriod = time.Duration(*hc.StartPeriod)
	}
	if hc.Retries != nil {
		out.Retries = int(*hc.Retries)
	}

	if raw, ok := hc.Extensions[successThresholdKey]; ok {
		n, err := extensionInt(raw)
		if err != nil || n < 1 {
			return nil, errors.Errorf("service %q: invalid %s", name, successThresholdKey)
		}
		out.SuccessThreshold = n
	}

	return out, nil
}

func convertDependsOn(name string, deps types.DependsOnConfig) (map[string]Condition, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	out := make(map[string]Condition, len(deps))
	for depName, dep := range deps {
		cond := Condition(dep.Condition)
		switch cond {
		case "":
			cond = ConditionStarted
		case ConditionStarted, ConditionHealthy, ConditionCompletedSuccessfully:
		default:
			return nil, errors.Wrapf(ErrUnknownCondition, "service %q depends_on %q: %q", name, depName, dep.Condition)
		}
		out[depName] = cond
	}
	return out, nil
}

func convertNetworks(nets types.Networks) Network {
	out := Network{Name: "default"}
	if len(nets) == 0 {
		return out
	}

	// One shared network per stack; prefer "default" if several are declared.
	pick := ""
	for name := range nets {
		if name == "default" {
			pick = name
			break
		}
		if pick == "" || name < pick {
			pick = name
		}
	}

	net := nets[pick]
	out.Name = pick
	if net.Name != "" {
		out.Name = net.Name
	}
	if net.EnableIPv6 != nil {
		out.EnableIPv6 = *net.EnableIPv6
	}
	return out
}

func extensionInt(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, errors.Errorf("not an integer: %v", raw)
	}
}
