package am

import (
	"encoding/json"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/recenthistory/errors"
)

// Output formats understood by Render.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render marshals the configuration in format. TOML and YAML output start
// with a comment line.
func (c *Config) Render(format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil

	case FormatYAML:
		data, err := yaml.Marshal(c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return append([]byte("# recenthistory configuration\n"), data...), nil

	case FormatTOML, "":
		data, err := toml.Marshal(c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return append([]byte("# recenthistory configuration\n"), data...), nil
	}
	return nil, errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
}
