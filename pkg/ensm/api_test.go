package ensm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ensm/internal/config"
)

const (
	pdConfigPath      = "../../configs/prisoners_dilemma.yaml"
	trafficConfigPath = "../../configs/traffic_network.yaml"
)

func TestClientRunConverges(t *testing.T) {
	client := New(Options{})
	summary, err := client.Run(context.Background(), RunRequest{ConfigPath: pdConfigPath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" || summary.Report.RunID != summary.RunID {
		t.Fatalf("unexpected run id: %q report=%q", summary.RunID, summary.Report.RunID)
	}
	if !summary.Result.Converged || summary.Result.TimedOut {
		t.Fatalf("expected convergence, got generations=%d timed_out=%t", summary.Result.Generations, summary.Result.TimedOut)
	}
	freq, ok := summary.Result.Final.ActionFrequency("cooperators", "player(one)", "none", "C")
	if !ok || freq <= 0.9 {
		t.Fatalf("unexpected cooperation frequency %f ok=%t", freq, ok)
	}
}

func TestClientRunOverrides(t *testing.T) {
	client := New(Options{})
	summary, err := client.Run(context.Background(), RunRequest{
		ConfigPath:     pdConfigPath,
		MaxGenerations: 3,
		Workers:        1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Result.Generations != 3 || !summary.Result.TimedOut {
		t.Fatalf("override not applied: generations=%d timed_out=%t", summary.Result.Generations, summary.Result.TimedOut)
	}
	if _, err := client.Run(context.Background(), RunRequest{ConfigPath: pdConfigPath, Workers: -1}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for negative override, got %v", err)
	}
}

func TestClientRunInMemoryConfig(t *testing.T) {
	cfg, err := config.Load(trafficConfigPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.MaxGenerations = 10
	summary, err := New(Options{}).Run(context.Background(), RunRequest{Config: &cfg})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Result.Generations == 0 || summary.Result.Generations > 10 {
		t.Fatalf("unexpected generations %d", summary.Result.Generations)
	}
	if len(summary.Report.Dominant) == 0 {
		t.Fatal("expected dominant actions in the report")
	}
}

func TestClientRunRequiresConfig(t *testing.T) {
	if _, err := New(Options{}).Run(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestClientBuildRejectsInconsistentPopulation(t *testing.T) {
	cfg, err := config.Load(pdConfigPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	half := 0.5
	cfg.Population[0].Proportion = &half
	if _, err := New(Options{}).Build(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for proportions, got %v", err)
	}

	cfg, err = config.Load(pdConfigPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Population[1].GamePayoffs[0].GameName = "chicken"
	if _, err := New(Options{}).Build(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown game, got %v", err)
	}
}

func TestClientValidate(t *testing.T) {
	summary, err := New(Options{}).Validate(RunRequest{ConfigPath: trafficConfigPath})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := ValidationSummary{
		Games:          2,
		Dependencies:   1,
		Contexts:       5,
		JointContexts:  1,
		Norms:          12,
		SubPopulations: 2,
	}
	if summary != want {
		t.Fatalf("unexpected summary: got %+v want %+v", summary, want)
	}
}

func TestClientNetwork(t *testing.T) {
	summary, err := New(Options{}).Network(RunRequest{ConfigPath: trafficConfigPath})
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	var joint []ContextItem
	for _, item := range summary.Contexts {
		if item.Joint {
			joint = append(joint, item)
		}
	}
	if len(joint) != 1 || joint[0].Context != "light(red) & road(wet)" {
		t.Fatalf("unexpected joint contexts: %+v", joint)
	}
	if len(joint[0].Actions) != 4 || len(joint[0].Roles) != 2 {
		t.Fatalf("unexpected joint context detail: %+v", joint[0])
	}
	if len(summary.Dependencies) != 1 {
		t.Fatalf("expected one dependency, got %+v", summary.Dependencies)
	}
}

func TestClientValidateReportsConfigErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body, err := os.ReadFile(pdConfigPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	broken := strings.Replace(string(body), "fitnessAggregation: min", "fitnessAggregation: median", 1)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(Options{}).Validate(RunRequest{ConfigPath: path}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
