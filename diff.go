package tpsec

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/supremind/tpsec/types"
)

// DiffRecords renders the differences between two sets of records as a unified diff.
// Records are compared as sorted "scope/name = action" lines, so ordering does not matter.
func DiffRecords(from, to []types.PermissionRecord, fromName, toName string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        recordLines(from),
		B:        recordLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  1,
	})
}

func recordLines(records []types.PermissionRecord) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.Scope+"/"+r.Name+" = "+r.Action.String()+"\n")
	}
	sort.Strings(lines)
	return lines
}
