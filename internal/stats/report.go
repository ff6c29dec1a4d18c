package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"ensm/internal/evo"
)

type DominantAction struct {
	SubPopulation string  `json:"sub_population"`
	Context       string  `json:"context"`
	Norm          string  `json:"norm"`
	NormFrequency float64 `json:"norm_frequency"`
	Action        string  `json:"action"`
	Frequency     float64 `json:"frequency"`
}

type Report struct {
	RunID         string           `json:"run_id"`
	Generations   int              `json:"generations"`
	Converged     bool             `json:"converged"`
	TimedOut      bool             `json:"timed_out"`
	StableSince   int              `json:"stable_since,omitempty"`
	FinalMaxDelta float64          `json:"final_max_delta"`
	MeanFitness   float64          `json:"mean_fitness"`
	Dominant      []DominantAction `json:"dominant"`
}

// BuildReport summarizes a finished run by the most frequent action of
// every (sub-population, context, norm) strategy. Ties keep the first action.
// StableSince is the generation after which a converged run stayed within
// the stability margin.
func BuildReport(runID string, result evo.RunResult) Report {
	report := Report{
		RunID:       runID,
		Generations: result.Generations,
		Converged:   result.Converged,
		TimedOut:    result.TimedOut,
	}
	if n := len(result.Diagnostics); n > 0 {
		report.FinalMaxDelta = result.Diagnostics[n-1].MaxDelta
		report.MeanFitness = result.Diagnostics[n-1].MeanFitness
		if result.Converged {
			report.StableSince = result.Generations - result.Diagnostics[n-1].StableGenerations
		}
	}
	for _, sub := range result.Final.SubPopulations {
		for _, cs := range sub.Contexts {
			for _, ns := range cs.Norms {
				if len(ns.Actions) == 0 {
					continue
				}
				best := ns.Actions[0]
				for _, af := range ns.Actions[1:] {
					if af.Frequency > best.Frequency {
						best = af
					}
				}
				report.Dominant = append(report.Dominant, DominantAction{
					SubPopulation: sub.Name,
					Context:       cs.Context,
					Norm:          ns.Norm,
					NormFrequency: ns.Frequency,
					Action:        best.Action,
					Frequency:     best.Frequency,
				})
			}
		}
	}
	return report
}

func (r Report) Outcome() string {
	switch {
	case r.Converged:
		return "converged"
	case r.TimedOut:
		return "timed out"
	default:
		return "running"
	}
}

func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func WriteText(w io.Writer, r Report) error {
	if _, err := fmt.Fprintf(w, "run=%s outcome=%s generations=%d max_delta=%.3g mean_fitness=%.4f",
		r.RunID, r.Outcome(), r.Generations, r.FinalMaxDelta, r.MeanFitness); err != nil {
		return err
	}
	if r.Converged {
		if _, err := fmt.Fprintf(w, " stable_since=%d", r.StableSince); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUB-POPULATION\tCONTEXT\tNORM\tNORM FREQ\tACTION\tFREQ")
	for _, d := range r.Dominant {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%s\t%.4f\n",
			d.SubPopulation, d.Context, d.Norm, d.NormFrequency, d.Action, d.Frequency)
	}
	return tw.Flush()
}
