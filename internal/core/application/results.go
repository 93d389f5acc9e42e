package application

import (
	"fmt"
	"sort"
	"strings"

	"github.com/retrofund/retrofund/internal/core/domain"
)

const (
	ResultsSum    ResultsMethod = "SUM"
	ResultsAvg    ResultsMethod = "AVG"
	ResultsMedian ResultsMethod = "MEDIAN"
)

// ResultsMethod is the statistical aggregation policy applied to the
// votes collected for an application.
type ResultsMethod string

func ParseResultsMethod(s string) (ResultsMethod, error) {
	switch ResultsMethod(strings.ToUpper(s)) {
	case ResultsSum:
		return ResultsSum, nil
	case ResultsAvg:
		return ResultsAvg, nil
	case ResultsMedian:
		return ResultsMedian, nil
	default:
		return "", fmt.Errorf("unknown results method: %s", s)
	}
}

// CalculateResultsForApplications aggregates ballots into one score per
// application. Only ballots carrying an explicit entry for an application
// contribute a value to it; a missing entry is not a zero vote. An
// application nobody voted for scores 0 under every method.
func CalculateResultsForApplications(
	applicationIds []string, ballots []domain.Ballot, method ResultsMethod,
) (map[string]float64, error) {
	scores := make(map[string]float64, len(applicationIds))
	for _, appId := range applicationIds {
		values := make([]float64, 0, len(ballots))
		for _, ballot := range ballots {
			if value, ok := ballot.Votes[appId]; ok {
				values = append(values, value)
			}
		}

		switch method {
		case ResultsSum:
			scores[appId] = sum(values)
		case ResultsAvg:
			if len(values) <= 0 {
				scores[appId] = 0
				continue
			}
			scores[appId] = sum(values) / float64(len(values))
		case ResultsMedian:
			scores[appId] = median(values)
		default:
			return nil, fmt.Errorf("unknown results method: %s", method)
		}
	}
	return scores, nil
}

// NormalizeImportedResults covers every known application with a defined
// score: ids absent from the imported map score 0, imported ids unknown to
// the round are dropped.
func NormalizeImportedResults(
	applicationIds []string, importedScores map[string]float64,
) map[string]float64 {
	scores := make(map[string]float64, len(applicationIds))
	for _, appId := range applicationIds {
		scores[appId] = importedScores[appId]
	}
	return scores
}

func sum(values []float64) float64 {
	total := float64(0)
	for _, v := range values {
		total += v
	}
	return total
}

func median(values []float64) float64 {
	if len(values) <= 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
