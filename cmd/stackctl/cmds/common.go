package cmds

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// descriptorCandidates are tried in order when --file is not given.
var descriptorCandidates = []string{
	"stack.yaml",
	"stack.yml",
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

type rootOptions struct {
	Root        string
	File        string
	ProjectName string
	DepTimeout  time.Duration
	Timeout     time.Duration
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("root", "", "Stack root directory (defaults to current directory)")
	root.PersistentFlags().StringP("file", "f", "", "Path to the deployment descriptor (defaults to stack.yaml under root)")
	root.PersistentFlags().String("project-name", "", "Project name (defaults to the root directory name)")
	root.PersistentFlags().Duration("dep-timeout", 0, "Deadline for dependency waits (0 waits forever)")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "Grace period for stopping services")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	flags := cmd.Root().PersistentFlags()

	root, err := flags.GetString("root")
	if err != nil {
		return rootOptions{}, err
	}
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return rootOptions{}, err
	}

	file, err := flags.GetString("file")
	if err != nil {
		return rootOptions{}, err
	}
	if file == "" {
		for _, candidate := range descriptorCandidates {
			path := filepath.Join(root, candidate)
			if _, err := os.Stat(path); err == nil {
				file = path
				break
			}
		}
	} else if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}

	projectName, err := flags.GetString("project-name")
	if err != nil {
		return rootOptions{}, err
	}
	if projectName == "" {
		projectName = filepath.Base(root)
	}

	depTimeout, err := flags.GetDuration("dep-timeout")
	if err != nil {
		return rootOptions{}, err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	if timeout <= 0 {
		return rootOptions{}, errors.New("timeout must be > 0")
	}

	return rootOptions{
		Root:        root,
		File:        file,
		ProjectName: projectName,
		DepTimeout:  depTimeout,
		Timeout:     timeout,
	}, nil
}

func (o rootOptions) requireFile() error {
	if o.File == "" {
		return errors.New("no descriptor found (add stack.yaml or pass --file)")
	}
	return nil
}
