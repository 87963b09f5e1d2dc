package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile decodes the TOML file at path over cfg. Keys missing from the file
// keep their current value.
func LoadFile(path string, cfg *Configuration) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("invalid config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.ConfigFile = path
	return nil
}
