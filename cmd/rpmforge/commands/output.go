package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rpmforge/rpmforge/pkg/release"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printRelease renders a release either as JSON or as a short summary.
func printRelease(rel *release.Release) error {
	if jsonOutput {
		return printJSON(rel)
	}

	fmt.Printf("Release:   %s\n", rel.ID)
	fmt.Printf("Status:    %s\n", rel.Status)
	fmt.Printf("Platform:  %s\n", rel.Platform)
	fmt.Printf("Created:   %s by %s\n", rel.CreatedAt.Format("2006-01-02 15:04:05"), rel.CreatedBy)
	fmt.Printf("Builds:    %s\n", formatIDs(rel.BuildIDs))
	if rel.Plan != nil {
		fmt.Printf("Packages:  %d\n", len(rel.Plan.Packages))
		if len(rel.Plan.Modules) > 0 {
			fmt.Printf("Modules:   %d\n", len(rel.Plan.Modules))
		}
		fmt.Printf("Repos:     %d\n", len(rel.Plan.Repositories))
		if rel.Plan.LastLog != "" {
			fmt.Printf("Log:\n")
			for _, line := range strings.Split(rel.Plan.LastLog, "\n") {
				fmt.Printf("  %s\n", line)
			}
		}
	}
	return nil
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
