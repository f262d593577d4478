package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// WriteExample writes a starter config.yaml populated with the defaults, so
// operators have every tunable in front of them instead of guessing keys.
// It refuses to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	cfg, err := Load()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal example")
	}

	header := []byte("# collector-cli configuration. Every value below is the default;\n# environment variables with the COLLECTOR_ prefix override file values.\n")
	if err := os.WriteFile(path, append(header, out...), 0o644); err != nil {
		return eris.Wrap(err, "config: write example")
	}
	return nil
}
