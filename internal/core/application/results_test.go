package application_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrofund/retrofund/internal/core/application"
	"github.com/retrofund/retrofund/internal/core/domain"
)

func TestCalculateResultsForApplications(t *testing.T) {
	appIds := []string{"app-a", "app-b", "app-c"}
	ballots := []domain.Ballot{
		{Votes: map[string]float64{"app-a": 1, "app-b": 2}},
		{Votes: map[string]float64{"app-a": 2}},
		{Votes: map[string]float64{"app-a": 1}},
		{Votes: map[string]float64{"app-a": 10}},
	}

	fixtures := []struct {
		method   application.ResultsMethod
		expected map[string]float64
	}{
		{application.ResultsSum, map[string]float64{"app-a": 14, "app-b": 2, "app-c": 0}},
		{application.ResultsAvg, map[string]float64{"app-a": 3.5, "app-b": 2, "app-c": 0}},
		{application.ResultsMedian, map[string]float64{"app-a": 1.5, "app-b": 2, "app-c": 0}},
	}

	for _, f := range fixtures {
		t.Run(string(f.method), func(t *testing.T) {
			scores, err := application.CalculateResultsForApplications(appIds, ballots, f.method)
			require.NoError(t, err)
			require.Equal(t, f.expected, scores)
		})
	}
}

func TestCalculateResultsSkipsMissingEntries(t *testing.T) {
	// A ballot without an entry for an application is not a zero vote: it
	// must not drag the average or the median down.
	appIds := []string{"app-a"}
	ballots := []domain.Ballot{
		{Votes: map[string]float64{"app-a": 4}},
		{Votes: map[string]float64{}},
		{Votes: map[string]float64{"app-a": 2}},
	}

	scores, err := application.CalculateResultsForApplications(appIds, ballots, application.ResultsAvg)
	require.NoError(t, err)
	require.Equal(t, float64(3), scores["app-a"])

	scores, err = application.CalculateResultsForApplications(appIds, ballots, application.ResultsMedian)
	require.NoError(t, err)
	require.Equal(t, float64(3), scores["app-a"])
}

func TestCalculateResultsUnknownMethod(t *testing.T) {
	_, err := application.CalculateResultsForApplications(
		[]string{"app-a"}, nil, application.ResultsMethod("MODE"),
	)
	require.Error(t, err)
}

func TestNormalizeImportedResults(t *testing.T) {
	appIds := []string{"app-a", "app-b", "app-c"}
	imported := map[string]float64{
		"app-b":   42,
		"unknown": 7,
	}

	scores := application.NormalizeImportedResults(appIds, imported)
	require.Equal(t, map[string]float64{"app-a": 0, "app-b": 42, "app-c": 0}, scores)
}

func TestParseResultsMethod(t *testing.T) {
	for _, s := range []string{"SUM", "sum", "Avg", "median"} {
		method, err := application.ParseResultsMethod(s)
		require.NoError(t, err)
		require.NotEmpty(t, method)
	}

	_, err := application.ParseResultsMethod("mode")
	require.Error(t, err)
}
