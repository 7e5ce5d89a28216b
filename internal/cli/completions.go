package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// completeTaskIDs returns a completion function that lists task IDs from the
// current snapshot. Completed tasks are only offered when includeCompleted
// is set.
func completeTaskIDs(includeCompleted bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if TaskStore == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var ids []string
		for _, v := range TaskStore.Views() {
			if v.Completed() && !includeCompleted {
				continue
			}
			if toComplete == "" || strings.HasPrefix(v.ID, toComplete) {
				// Business and step as description for better UX.
				ids = append(ids, v.ID+"\t"+describeForCompletion(v.Business.BusinessName, v.StepLabel))
			}
		}

		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

func describeForCompletion(business, step string) string {
	if business == "" {
		return step
	}
	return business + ": " + step
}

// completeClassifications lists the stored classifications.
func completeClassifications(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(models.AllClassifications))
	for _, c := range models.AllClassifications {
		out = append(out, string(c))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completePriorities returns a completion function for priority values.
func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"high\tHandle first",
		"medium\tDefault",
		"low\tWhen time allows",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeSteps lists step ids of the classification named by --class, or
// of every classification when the flag is unset.
func completeSteps(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if TaskStore == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	registry := TaskStore.Registry()

	classes := registry.Classifications()
	if f := cmd.Flags().Lookup("class"); f != nil && f.Value.String() != "" {
		classes = []models.Classification{models.Classification(f.Value.String())}
	}

	seen := make(map[string]bool)
	var steps []string
	for _, c := range classes {
		for _, s := range registry.StepsFor(c) {
			if seen[s.StepID] || !strings.HasPrefix(s.StepID, toComplete) {
				continue
			}
			seen[s.StepID] = true
			steps = append(steps, s.StepID+"\t"+s.DisplayLabel)
		}
	}
	return steps, cobra.ShellCompDirectiveNoFileComp
}
