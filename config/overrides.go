package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dulceflor/image-pipeline/errors"
)

// PresetOverrides allows operators to tune the built-in presets from a YAML
// file without rebuilding. Only the classes present in the file are touched.
type PresetOverrides struct {
	Products   *ProcessingConfig `yaml:"products"`
	Flavors    *ProcessingConfig `yaml:"flavors"`
	Categories *ProcessingConfig `yaml:"categories"`
}

// LoadOverrides parses the YAML file at path. A missing file is not an
// error; a malformed one is.
func LoadOverrides(path string) (PresetOverrides, error) {
	var o PresetOverrides
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, apperrors.Wrap(apperrors.CategoryConfig, "overrides.read", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, apperrors.Wrap(apperrors.CategoryConfig, "overrides.parse", err)
	}
	return o, nil
}

// Apply merges o over the built-in preset for the named class and validates
// the result. Overridden presets keep the built-in name.
func (o PresetOverrides) Apply(base ProcessingConfig) (ProcessingConfig, error) {
	var override *ProcessingConfig
	switch base.Name {
	case "products":
		override = o.Products
	case "flavors":
		override = o.Flavors
	case "categories":
		override = o.Categories
	}
	if override == nil {
		return base, nil
	}

	merged := *override
	merged.Name = base.Name
	if merged.Limits.AllowedFormats == nil {
		merged.Limits.AllowedFormats = base.Limits.AllowedFormats
	}
	if err := checkPreset(merged); err != nil {
		return base, err
	}
	return merged, nil
}

func checkPreset(cfg ProcessingConfig) error {
	if cfg.WebP.Quality < 0 || cfg.WebP.Quality > 100 {
		return apperrors.New(apperrors.CategoryConfig, "overrides.check",
			fmt.Errorf("%s: webp quality %d out of range", cfg.Name, cfg.WebP.Quality))
	}
	if cfg.Thumbnail.Enabled && cfg.Thumbnail.Size <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "overrides.check",
			fmt.Errorf("%s: thumbnail enabled with size %d", cfg.Name, cfg.Thumbnail.Size))
	}
	if cfg.Backup.Enabled && cfg.Backup.RetentionDays <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "overrides.check",
			fmt.Errorf("%s: backup enabled with retention %d days", cfg.Name, cfg.Backup.RetentionDays))
	}
	return nil
}
