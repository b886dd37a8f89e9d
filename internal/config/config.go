// Package config holds the run parameters: domain bound, step counts,
// substance settings, and cohort sizes. Defaults reproduce the reference
// retina configuration; a YAML file may override any field.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/diffusion"
	"github.com/talgya/retinasim/internal/space"
)

// Config is the complete run configuration.
type Config struct {
	Seed           int64        `yaml:"seed"`
	Bounds         space.Bounds `yaml:"bounds"`
	Steps          uint64       `yaml:"steps"`
	TimeStep       float64      `yaml:"time_step"`
	ExportInterval uint64       `yaml:"export_interval"` // 0 disables frame export
	ReportInterval uint64       `yaml:"report_interval"` // 0 disables layer reports
	Workers        int          `yaml:"workers"`         // 0 = one per CPU

	Substance  Substance  `yaml:"substance"`
	Population Population `yaml:"population"`
}

// Substance configures the guidance field and its initial profile.
type Substance struct {
	Name          string  `yaml:"name"`
	DiffusionCoef float64 `yaml:"diffusion_coef"`
	DecayConstant float64 `yaml:"decay_constant"`
	Resolution    int     `yaml:"resolution"`
	Band          Band    `yaml:"band"`
	Noise         Noise   `yaml:"noise"`
}

// Band is the Gaussian initial profile along one axis.
type Band struct {
	Mean  float64 `yaml:"mean"`
	Sigma float64 `yaml:"sigma"`
	Axis  string  `yaml:"axis"` // "x", "y" or "z"
}

// Noise optionally roughens the initial profile.
type Noise struct {
	Amplitude float64 `yaml:"amplitude"`
	Scale     float64 `yaml:"scale"`
}

// Population is the number of cells per type.
type Population struct {
	Ganglion   int `yaml:"ganglion"`
	Amacrine   int `yaml:"amacrine"`
	Bipolar    int `yaml:"bipolar"`
	Horizontal int `yaml:"horizontal"`
	Cone       int `yaml:"cone"`
	Rod        int `yaml:"rod"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Seed:           0,
		Bounds:         space.Bounds{Min: 0, Max: 250},
		Steps:          1800,
		TimeStep:       1,
		ExportInterval: 2,
		ReportInterval: 100,
		Workers:        0,
		Substance: Substance{
			Name:          "substance",
			DiffusionCoef: 0.5,
			DecayConstant: 0.1,
			Resolution:    4,
			Band:          Band{Mean: 200, Sigma: 100, Axis: "z"},
			Noise:         Noise{Amplitude: 0, Scale: 0.02},
		},
		Population: Population{
			Ganglion:   400,
			Amacrine:   400,
			Bipolar:    400,
			Horizontal: 200,
			Cone:       250,
			Rod:        250,
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file
// keep their default values; unknown fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := validateSchema(raw); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the setup phase cannot run.
func (c Config) Validate() error {
	var errs []error
	if err := c.Bounds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Steps == 0 {
		errs = append(errs, errors.New("steps must be positive"))
	}
	if c.TimeStep <= 0 {
		errs = append(errs, errors.New("time_step must be positive"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must be non-negative"))
	}
	if _, err := ParseAxis(c.Substance.Band.Axis); err != nil {
		errs = append(errs, err)
	}
	if c.Substance.Band.Sigma <= 0 {
		errs = append(errs, errors.New("substance.band.sigma must be positive"))
	}
	if err := c.FieldParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, spec := range c.Cohorts() {
		if spec.Count < 0 {
			errs = append(errs, fmt.Errorf("population.%s: %w", spec.Type, cells.ErrNegativeCount))
		}
	}
	return errors.Join(errs...)
}

// Cohorts returns the population specs in creation order.
func (c Config) Cohorts() []cells.PopulationSpec {
	p := c.Population
	return []cells.PopulationSpec{
		{Type: cells.TypeGanglion, Count: p.Ganglion},
		{Type: cells.TypeAmacrine, Count: p.Amacrine},
		{Type: cells.TypeBipolar, Count: p.Bipolar},
		{Type: cells.TypeHorizontal, Count: p.Horizontal},
		{Type: cells.TypeCone, Count: p.Cone},
		{Type: cells.TypeRod, Count: p.Rod},
	}
}

// TotalCells returns the number of cells the population will create.
func (c Config) TotalCells() int {
	total := 0
	for _, spec := range c.Cohorts() {
		total += spec.Count
	}
	return total
}

// FieldParams converts the substance section into grid parameters.
func (c Config) FieldParams() diffusion.Params {
	s := c.Substance
	return diffusion.Params{
		Name:          s.Name,
		DiffusionCoef: s.DiffusionCoef,
		DecayConstant: s.DecayConstant,
		Resolution:    s.Resolution,
		Bounds:        c.Bounds,
	}
}

// InitialProfile builds the substance initializer: the Gaussian band,
// optionally perturbed by simplex noise seeded from the run seed.
func (c Config) InitialProfile() (diffusion.Initializer, error) {
	axis, err := ParseAxis(c.Substance.Band.Axis)
	if err != nil {
		return nil, err
	}
	band := diffusion.GaussianBand(c.Substance.Band.Mean, c.Substance.Band.Sigma, axis)
	n := c.Substance.Noise
	return diffusion.WithSimplexNoise(band, c.Seed, n.Amplitude, n.Scale), nil
}

// ParseAxis maps "x", "y" or "z" to an axis.
func ParseAxis(name string) (space.Axis, error) {
	switch name {
	case "x", "X":
		return space.AxisX, nil
	case "y", "Y":
		return space.AxisY, nil
	case "z", "Z", "":
		return space.AxisZ, nil
	default:
		return 0, fmt.Errorf("unknown axis %q", name)
	}
}
