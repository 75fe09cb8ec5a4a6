// Package envfile reads env_file entries into a process environment.
package envfile

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// Load reads the given env files in order and merges them, later files
// overriding earlier ones. Files are read once, at service start time.
func Load(paths []string) (map[string]string, error) {
	out := map[string]string{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open env file %s", path)
		}
		env, err := gotenv.StrictParse(f)
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "parse env file %s", path)
		}
		for k, v := range env {
			out[k] = v
		}
	}
	return out, nil
}

// Merge layers override on top of base without mutating either.
func Merge(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Flatten renders an environment map as KEY=VALUE pairs in sorted key order.
func Flatten(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
