// Package config loads the YAML description of a simulation: the games,
// their dependencies, the population and the evolution parameters.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ensm/internal/games"
	"ensm/internal/population"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultAggregation    = "min"
	DefaultInitialization = "random"
	DefaultSeed           = 1
	DefaultWorkers        = 1
)

type Config struct {
	MaxGenerations          int     `yaml:"maxGenerations" validate:"gt=0"`
	StabilityMargin         float64 `yaml:"stabilityMargin" validate:"gte=0"`
	MinNumStableGenerations int     `yaml:"minNumStableGenerations" validate:"gt=0"`
	Regulate                bool    `yaml:"regulate"`
	EvolveNorms             bool    `yaml:"evolveNorms"`
	FitnessAggregation      string  `yaml:"fitnessAggregation" validate:"oneof=min max mean"`
	Initialization          string  `yaml:"initialization" validate:"oneof=random uniform"`
	Seed                    int64   `yaml:"seed"`
	Workers                 int     `yaml:"workers" validate:"gte=0"`

	Games            []GameConfig       `yaml:"games" validate:"required,min=1,dive"`
	GameDependencies []DependencyConfig `yaml:"gameDependencies" validate:"dive"`
	Population       []SubPopulation    `yaml:"population" validate:"required,min=1,dive"`
}

type GameConfig struct {
	Name      string           `yaml:"name" validate:"required"`
	Contexts  []string         `yaml:"contexts" validate:"required,min=1,dive,required"`
	Utilities []UtilityConfig  `yaml:"utilities" validate:"required,min=1,dive"`
	Sanctions []SanctionConfig `yaml:"sanctions" validate:"dive"`
}

type UtilityConfig struct {
	Actions []string `yaml:"actions" validate:"required,min=1,dive,required"`
	Payoff  *float64 `yaml:"payoff" validate:"required"`
}

type SanctionConfig struct {
	Name    string  `yaml:"name" validate:"required"`
	Penalty float64 `yaml:"penalty"`
}

type GameRoleConfig struct {
	Game string `yaml:"game" validate:"required"`
	Role int    `yaml:"role" validate:"gte=0"`
}

type DependencyConfig struct {
	From GameRoleConfig `yaml:"from"`
	To   GameRoleConfig `yaml:"to"`
}

type SubPopulation struct {
	Name        string             `yaml:"name" validate:"required"`
	Proportion  *float64           `yaml:"proportion" validate:"required,gte=0,lte=1"`
	GamePayoffs []GamePayoffConfig `yaml:"gamePayoffs" validate:"required,min=1,dive"`
}

type GamePayoffConfig struct {
	GameName string         `yaml:"gameName" validate:"required"`
	Payoffs  []PayoffConfig `yaml:"payoffs" validate:"required,min=1,dive"`
}

type PayoffConfig struct {
	Actions []string  `yaml:"actions" validate:"required,min=1,dive,required"`
	Payoffs []float64 `yaml:"payoffs" validate:"required,min=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Default() Config {
	return Config{
		FitnessAggregation: DefaultAggregation,
		Initialization:     DefaultInitialization,
		Seed:               DefaultSeed,
		Workers:            DefaultWorkers,
	}
}

// Load reads and validates the YAML config at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of Default and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize fills empty optional fields with their defaults.
func (c *Config) Normalize() {
	c.FitnessAggregation = strings.ToLower(strings.TrimSpace(c.FitnessAggregation))
	if c.FitnessAggregation == "" {
		c.FitnessAggregation = DefaultAggregation
	}
	c.Initialization = strings.ToLower(strings.TrimSpace(c.Initialization))
	if c.Initialization == "" {
		c.Initialization = DefaultInitialization
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BuildGames builds the games declared in the config, in declaration order.
func (c Config) BuildGames() ([]*games.Game, error) {
	out := make([]*games.Game, 0, len(c.Games))
	for _, gc := range c.Games {
		contexts := make([]games.Context, 0, len(gc.Contexts))
		for _, desc := range gc.Contexts {
			ctx, err := games.ParseContext(desc)
			if err != nil {
				return nil, fmt.Errorf("%w: game %s: %w", ErrInvalidConfig, gc.Name, err)
			}
			contexts = append(contexts, ctx)
		}
		utilities := make([]games.Utility, 0, len(gc.Utilities))
		for _, u := range gc.Utilities {
			utilities = append(utilities, games.Utility{Actions: u.Actions, Payoff: *u.Payoff})
		}
		var sanctions []games.Sanction
		for _, s := range gc.Sanctions {
			sanctions = append(sanctions, games.Sanction{Name: s.Name, Penalty: s.Penalty})
		}
		g, err := games.NewGame(gc.Name, contexts, utilities, sanctions)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (c Config) Dependencies() []games.Dependency {
	out := make([]games.Dependency, 0, len(c.GameDependencies))
	for _, d := range c.GameDependencies {
		out = append(out, games.Dependency{
			A: games.GameRole{Game: d.From.Game, Role: d.From.Role},
			B: games.GameRole{Game: d.To.Game, Role: d.To.Role},
		})
	}
	return out
}

func (c Config) SubPopulationSpecs() []population.SubPopulationSpec {
	out := make([]population.SubPopulationSpec, 0, len(c.Population))
	for _, sc := range c.Population {
		spec := population.SubPopulationSpec{
			Name:       sc.Name,
			Proportion: *sc.Proportion,
			Payoffs:    make(map[string][]population.PayoffEntry, len(sc.GamePayoffs)),
		}
		for _, gp := range sc.GamePayoffs {
			for _, p := range gp.Payoffs {
				spec.Payoffs[gp.GameName] = append(spec.Payoffs[gp.GameName], population.PayoffEntry{
					Actions: p.Actions,
					Payoffs: p.Payoffs,
				})
			}
		}
		out = append(out, spec)
	}
	return out
}
