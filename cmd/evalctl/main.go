// Command evalctl is an operator tool for the rubric catalogue, offline
// scoring of raw grader output, and credential bootstrapping.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "evalctl",
		Short:        "Operator tooling for the sales certification evaluator",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("catalogue", os.Getenv("RUBRIC_CATALOGUE_PATH"), "Rubric catalogue YAML (empty = embedded default)")
	root.AddCommand(catalogueCmd(), extractCmd(), tokenCmd(), hashPasswordCmd())
	return root
}

func loadEngine(cmd *cobra.Command) (*engine.Engine, error) {
	path, _ := cmd.Flags().GetString("catalogue")
	cat, err := config.LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	return engine.New(cat)
}

func catalogueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "Inspect the rubric catalogue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the catalogue and list its rubrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			cat := e.Catalogue()
			kinds := make([]string, 0, len(cat.Rubrics))
			for k := range cat.Rubrics {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			out := cmd.OutOrStdout()
			for _, k := range kinds {
				r := cat.Rubrics[k]
				fmt.Fprintf(out, "%-16s type=%-14s groups=%-3d rescale=%g\n", k, r.Type, len(r.Groups), r.RescaleTarget)
			}
			fmt.Fprintf(out, "certification entries: %d\n", len(cat.Certification))
			return nil
		},
	})
	return cmd
}

type extractOutput struct {
	Kind        string             `json:"kind"`
	Items       int                `json:"items"`
	GroupTotals map[string]float64 `json:"group_totals"`
	TotalScore  float64            `json:"total_score"`
	MaxScore    float64            `json:"max_score"`
	FinalScore  float64            `json:"final_score"`
	Feedback    string             `json:"feedback,omitempty"`
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract, normalize and score a raw grader response offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			file, _ := cmd.Flags().GetString("file")
			e, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			res, err := e.ExtractAndNormalize(string(raw), kind)
			if err != nil {
				return err
			}
			rubric, err := e.Rubric(kind)
			if err != nil {
				return err
			}
			b := engine.Calculate(res, rubric)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(extractOutput{
				Kind:        kind,
				Items:       len(res.Items),
				GroupTotals: b.GroupTotals,
				TotalScore:  b.TotalScore,
				MaxScore:    b.MaxScore,
				FinalScore:  b.FinalScore,
				Feedback:    res.Feedback,
			})
		},
	}
	f := cmd.Flags()
	f.StringP("kind", "k", "", "Exercise kind (required)")
	f.StringP("file", "f", "-", "Raw response file (- for stdin)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	// #nosec G304 -- operator supplied path
	return os.ReadFile(file)
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			secret, _ := f.GetString("secret")
			subject, _ := f.GetString("subject")
			role, _ := f.GetString("role")
			org, _ := f.GetString("org")
			ttl, _ := f.GetDuration("ttl")
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			tok, exp, err := httpserver.NewTokenManager(secret, ttl).Issue(subject, httpserver.Role(role), org)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	f.String("subject", "", "Token subject, the learner or trainer id (required)")
	f.String("role", string(httpserver.RoleLearner), "Role claim (learner, trainer)")
	f.String("org", "", "Organization claim used for grader rate limiting")
	f.Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print an argon2id hash for TRAINER_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := httpserver.HashPassword(args[0], httpserver.DefaultArgon2Params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
