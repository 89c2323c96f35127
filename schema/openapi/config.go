package openapi

import (
	"fmt"
	"strings"

	settings "github.com/goliatone/go-settings"
)

const openAPIVersion = "3.0.3"

type generatorConfig struct {
	title   string
	version string
	method  string
	path    string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		method: "put",
		path:   "/settings",
	}
}

// GeneratorOption configures Generate.
type GeneratorOption func(*generatorConfig)

// WithTitle replaces the document title, which defaults to the definition
// container name.
func WithTitle(title string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.title = strings.TrimSpace(title)
	}
}

// WithVersion replaces the document version, which defaults to the
// setting_version metadata entry of the definition container.
func WithVersion(version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.version = strings.TrimSpace(version)
	}
}

// WithEndpoint sets the method and path that accept setting values. Empty
// arguments keep PUT /settings.
func WithEndpoint(method, path string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if method != "" {
			cfg.method = strings.ToLower(method)
		}
		if path != "" {
			cfg.path = path
		}
	}
}

// resolve fills the title and version the options left empty from c.
func (cfg generatorConfig) resolve(c *settings.DefinitionContainer) generatorConfig {
	if cfg.title == "" {
		cfg.title = c.Name()
	}
	if cfg.title == "" {
		cfg.title = c.ID()
	}
	if cfg.version == "" {
		if version := c.MetadataEntry("setting_version", nil); version != nil {
			cfg.version = settings.FormatSettingValue(version)
		}
	}
	if cfg.version == "" {
		cfg.version = fmt.Sprint(settings.DefinitionVersion)
	}
	return cfg
}

func (cfg generatorConfig) operationID() string {
	return cfg.method + ":" + cfg.path
}
