package compliance

import (
	"github.com/advisory-lab/themis/pkg/domain/model"
)

// consensus aggregates independent judge verdicts into a single vote.
//
// The vote is a strict majority of pass verdicts. A tie resolves to
// tiePasses, which defaults to false (fail-safe). Confidence is the mean
// of all verdict confidences, and issues are the union across verdicts
// with duplicates (same type and description) collapsed.
func consensus(verdicts []*model.JudgeVerdict, tiePasses bool) (passed bool, confidence float64, issues []model.ValidationIssue) {
	if len(verdicts) == 0 {
		return false, 0, nil
	}

	passes := 0
	sum := 0.0
	for _, v := range verdicts {
		if v.Passed {
			passes++
		}
		sum += v.Confidence
	}

	fails := len(verdicts) - passes
	switch {
	case passes > fails:
		passed = true
	case fails > passes:
		passed = false
	default:
		passed = tiePasses
	}

	confidence = sum / float64(len(verdicts))
	issues = mergeIssues(verdicts)
	return passed, confidence, issues
}

// mergeIssues unions issues across verdicts, deduplicated on type and
// description. When duplicates differ in severity, the worst one is kept.
func mergeIssues(verdicts []*model.JudgeVerdict) []model.ValidationIssue {
	type key struct {
		issueType   string
		description string
	}

	index := make(map[key]int)
	var merged []model.ValidationIssue

	for _, v := range verdicts {
		for _, issue := range v.Issues {
			k := key{issueType: issue.Type.String(), description: issue.Description}
			if i, ok := index[k]; ok {
				if issue.Severity.Rank() > merged[i].Severity.Rank() {
					merged[i].Severity = issue.Severity
				}
				continue
			}
			index[k] = len(merged)
			merged = append(merged, issue)
		}
	}

	return merged
}
