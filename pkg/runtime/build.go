package runtime

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Builder prepares a service's runtime artifact before its first start. The
// actual image build subsystem is an external collaborator; implementations
// only have to fail when the build source cannot be resolved.
type Builder interface {
	Build(ctx context.Context, svc *compose.Service) error
}

// BuildFunc adapts a function to the Builder interface.
type BuildFunc func(ctx context.Context, svc *compose.Service) error

func (f BuildFunc) Build(ctx context.Context, svc *compose.Service) error {
	return f(ctx, svc)
}

// LocalBuilder resolves build sources against a root directory. Image
// references pass through untouched; build contexts must exist on disk.
type LocalBuilder struct {
	Root string
}

var _ Builder = (*LocalBuilder)(nil)

func (b *LocalBuilder) Build(ctx context.Context, svc *compose.Service) error {
	if svc.Build == nil {
		log.Debug().Str("service", svc.Name).Str("image", svc.Image).Msg("nothing to build")
		return nil
	}

	dir := svc.Build.Context
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(b.Root, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "service %q build context", svc.Name)
	}
	if !info.IsDir() {
		return errors.Errorf("service %q build context %s is not a directory", svc.Name, dir)
	}

	if svc.Build.Dockerfile != "" {
		if _, err := os.Stat(filepath.Join(dir, svc.Build.Dockerfile)); err != nil {
			return errors.Wrapf(err, "service %q dockerfile", svc.Name)
		}
	}

	log.Debug().Str("service", svc.Name).Str("context", dir).Msg("build source resolved")
	return nil
}
