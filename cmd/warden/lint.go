package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/policy/ast"
)

var lintFlags struct {
	file   string
	dir    string
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate rule files",
	Long: `Validate policy rule files for syntax and semantic errors.

The lint command parses rule files and checks:
  - YAML syntax
  - Rule structure (id, effect, priority)
  - Condition trees (operators, operand types)
  - Duplicate rule ids

Examples:
  # Lint a single file
  warden lint --file rules.yaml

  # Lint a directory
  warden lint --dir rules/

  # JSON output for CI
  warden lint --file rules.yaml --format json`,
	RunE: lintRules,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "rule file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of rule files")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

type lintResult struct {
	File  string `json:"file"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	if lintFlags.file == "" && lintFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if lintFlags.file != "" {
		files = append(files, lintFlags.file)
	}
	if lintFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
			matches, err := filepath.Glob(filepath.Join(lintFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list rule files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no rule files found")
	}

	var results []lintResult
	failed := false
	for _, file := range files {
		result := lintResult{File: file}
		data, err := os.ReadFile(file)
		if err != nil {
			result.Error = err.Error()
		} else if rules, err := ast.ParseRules(data); err != nil {
			result.Error = err.Error()
		} else {
			result.Rules = len(rules)
		}
		if result.Error != "" {
			failed = true
		}
		results = append(results, result)
	}

	switch lintFlags.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	default:
		for _, r := range results {
			if r.Error != "" {
				fmt.Printf("FAIL %s: %s\n", r.File, r.Error)
			} else {
				fmt.Printf("OK   %s (%d rules)\n", r.File, r.Rules)
			}
		}
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}
