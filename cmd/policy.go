package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/qforge/internal/platform/config"
	"github.com/abhisek/qforge/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Browse course policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadPolicies()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-16s  %-32s  %-14s  %8s  %7s  %s\n",
			"Code", "Name", "Level", "Subjects", "Retries", "Validators")
		fmt.Fprintln(out, strings.Repeat("─", 100))

		codes := append(table.Courses(), policy.DefaultCode)
		for _, code := range codes {
			p := table.Resolve(code)
			fmt.Fprintf(out, "%-16s  %-32s  %-14s  %8d  %7d  %s\n",
				p.Code, truncate(p.DisplayName, 32), p.EducationLevel,
				len(p.Subjects), p.Validation.MaxRetries, validators(p.Validation))
		}
		fmt.Fprintf(out, "\n%d courses\n", len(codes))
		return nil
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <course>",
	Short: "Show the resolved policy for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadPolicies()
		if err != nil {
			return err
		}
		if _, ok := table.Lookup(args[0]); !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "course %q is not configured, showing the default policy\n", args[0])
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(table.Resolve(args[0]))
	},
}

// loadPolicies reads policies without opening any database.
func loadPolicies() (*policy.Table, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	table, err := policy.LoadDir(cfg.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	return table, nil
}

func validators(v policy.ValidationSettings) string {
	var names []string
	if v.UseReflection {
		names = append(names, "relevance")
	}
	if v.UseSelector {
		names = append(names, "structural")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyShowCmd)
}
