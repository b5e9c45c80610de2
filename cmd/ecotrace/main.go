// ecotrace is the command-line client of the estimator. It runs the engine
// in process or, with --remote, against an ecotrace gRPC server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/footprint"
	"github.com/ashureev/ecotrace/internal/rpc"
	"github.com/ashureev/ecotrace/internal/tracker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// estimator is implemented by the in-process engine and the gRPC client.
type estimator interface {
	Estimate(ctx context.Context, a domain.Activities) (*tracker.Summary, error)
	Tips(ctx context.Context, em domain.Emissions) ([]domain.Tip, error)
	Week(ctx context.Context, em domain.Emissions) ([]domain.WeeklyDataPoint, error)
}

type localEstimator struct {
	engine *footprint.Engine
}

func (l localEstimator) Estimate(_ context.Context, a domain.Activities) (*tracker.Summary, error) {
	em := l.engine.Calculate(a)
	return &tracker.Summary{Emissions: em, Total: em.Total(), Breakdown: em.Breakdown()}, nil
}

func (l localEstimator) Tips(_ context.Context, em domain.Emissions) ([]domain.Tip, error) {
	return l.engine.GenerateTips(em), nil
}

func (l localEstimator) Week(_ context.Context, em domain.Emissions) ([]domain.WeeklyDataPoint, error) {
	return l.engine.GenerateHistoricalData(em), nil
}

type globalFlags struct {
	output  string
	remote  string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "ecotrace",
		Short:         "Estimate daily carbon emissions from lifestyle activities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch g.output {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", g.output)
			}
		},
	}
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text|json|yaml")
	root.PersistentFlags().StringVar(&g.remote, "remote", "", "gRPC address of an ecotrace server (default: run locally)")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("ECOTRACE_TOKEN"), "bearer token for remote profile calls")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "remote call timeout")

	root.AddCommand(newEstimateCmd(&g))
	root.AddCommand(newTipsCmd(&g))
	root.AddCommand(newWeekCmd(&g))
	root.AddCommand(newOptionsCmd(&g))
	root.AddCommand(newProfileCmd(&g))
	return root
}

// withEstimator runs fn against the local engine or the remote server.
func withEstimator(cmd *cobra.Command, g *globalFlags, fn func(context.Context, estimator) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()

	if g.remote == "" {
		return fn(ctx, localEstimator{engine: footprint.NewEngine(nil)})
	}
	client, err := rpc.Dial(g.remote)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(ctx, client.WithToken(g.token))
}

func newEstimateCmd(g *globalFlags) *cobra.Command {
	values := make(map[string]*string, len(domain.ActivityFields))

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate emissions for a set of activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := make(map[string]string, len(values))
			for name, v := range values {
				fields[name] = *v
			}
			a, err := domain.ActivitiesFromMap(fields)
			if err != nil {
				return err
			}
			return withEstimator(cmd, g, func(ctx context.Context, est estimator) error {
				summary, err := est.Estimate(ctx, a)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, summary, func(w io.Writer) {
					printSummary(w, summary)
				})
			})
		},
	}
	for _, name := range domain.ActivityFields {
		values[name] = cmd.Flags().String(flagName(name), "", fieldHelp(name))
	}
	return cmd
}

func emissionsFlags(cmd *cobra.Command) *domain.Emissions {
	em := &domain.Emissions{}
	cmd.Flags().Float64Var(&em.Transport, "transport", 0, "transport emissions (kg CO2e/day)")
	cmd.Flags().Float64Var(&em.Energy, "energy", 0, "energy emissions (kg CO2e/day)")
	cmd.Flags().Float64Var(&em.Food, "food", 0, "food emissions (kg CO2e/day)")
	return em
}

func newTipsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tips",
		Short: "Suggest reduction tips for an emissions breakdown",
		Args:  cobra.NoArgs,
	}
	em := emissionsFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return withEstimator(cmd, g, func(ctx context.Context, est estimator) error {
			tips, err := est.Tips(ctx, *em)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, map[string]any{"tips": tips}, func(w io.Writer) {
				if len(tips) == 0 {
					_, _ = fmt.Fprintln(w, "no tips")
					return
				}
				for _, t := range tips {
					_, _ = fmt.Fprintf(w, "[%s] %s (impact %s, %s)\n", t.Category, t.Tip, t.Impact, t.Difficulty)
				}
			})
		})
	}
	return cmd
}

func newWeekCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show a synthetic week around an emissions breakdown",
		Args:  cobra.NoArgs,
	}
	em := emissionsFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return withEstimator(cmd, g, func(ctx context.Context, est estimator) error {
			week, err := est.Week(ctx, *em)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, map[string]any{"week": week}, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
				_, _ = fmt.Fprintln(tw, "day\ttransport\tenergy\tfood\ttotal\t")
				for _, p := range week {
					_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n", p.Day, p.Transport, p.Energy, p.Food, p.Total)
				}
				_ = tw.Flush()
			})
		})
	}
	return cmd
}

func newOptionsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the accepted values of every categorical field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return render(cmd.OutOrStdout(), g.output, domain.Options, func(w io.Writer) {
				names := make([]string, 0, len(domain.Options))
				for name := range domain.Options {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					_, _ = fmt.Fprintf(w, "--%s\n", flagName(name))
					for _, o := range domain.Options[name] {
						_, _ = fmt.Fprintf(w, "  %-18s %s\n", o.Value, o.Label)
					}
				}
			})
		},
	}
}

func newProfileCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the stored dashboard of the token's user (remote only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.remote == "" {
				return fmt.Errorf("profile needs --remote")
			}
			if g.token == "" {
				return fmt.Errorf("profile needs --token or ECOTRACE_TOKEN")
			}
			client, err := rpc.Dial(g.remote)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			d, err := client.WithToken(g.token).Profile(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, d, func(w io.Writer) {
				summary := d.Summary()
				printSummary(w, &summary)
				for _, t := range d.Tips {
					_, _ = fmt.Fprintf(w, "tip: [%s] %s\n", t.Category, t.Tip)
				}
			})
		},
	}
}

func printSummary(w io.Writer, s *tracker.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "transport\t%.2f kg\n", s.Emissions.Transport)
	_, _ = fmt.Fprintf(tw, "energy\t%.2f kg\n", s.Emissions.Energy)
	_, _ = fmt.Fprintf(tw, "food\t%.2f kg\n", s.Emissions.Food)
	_, _ = fmt.Fprintf(tw, "total\t%.2f kg CO2e/day\n", s.Total)
	_ = tw.Flush()
}

// render writes v as JSON or YAML, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

func fieldHelp(field string) string {
	switch field {
	case domain.FieldCommuteDistance:
		return "one-way commute distance in km"
	case domain.FieldFlightsMonth:
		return "flights per month"
	}
	opts := domain.Options[field]
	vals := make([]string, len(opts))
	for i, o := range opts {
		vals[i] = o.Value
	}
	return strings.Join(vals, "|")
}
