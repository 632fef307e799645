package am

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/recenthistory/errors"
)

// Keys that are valid in a file but never decoded into Config.
var hiddenKeys = map[string]bool{
	"database.postgres.password": true,
}

// UnknownKeys parses the TOML file at path and returns the keys that match no
// configuration field, usually typos such as "histroy.store".
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		if name := key.String(); !hiddenKeys[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown, nil
}
