//go:build e2e

package e2e

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/search"
)

type entryPage struct {
	Items []struct {
		ID             string  `json:"id"`
		ElasticID      string  `json:"elasticId"`
		Extracted      bool    `json:"extracted"`
		ExtractionDate *string `json:"extractionDate"`
	} `json:"items"`
	Cursor  string `json:"cursor"`
	HasMore bool   `json:"has_more"`
}

// TestE2E_ExtractServeSweep seeds a day of logs, extracts it into Postgres,
// reads it through the API and sweeps it once delivered.
func TestE2E_ExtractServeSweep(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	today := domain.Day(time.Now())
	seeded := today.AddDate(0, 0, -1)

	// start right before the seeded day instead of the epoch
	require.NoError(t, env.Watermarks.Create(env.Ctx,
		domain.NewWatermark(uuid.NewString(), today.AddDate(0, 0, -2), 0, time.Now())))

	n, err := search.NewFaker(env.Client, zap.NewNop()).Seed(env.Ctx, seeded)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	var added int
	t.Run("extract pending days", func(t *testing.T) {
		result, err := env.Service.ExtractLatest(env.Ctx, env.StoreTarget())
		require.NoError(t, err)
		require.Len(t, result.Days, 2)
		assert.Greater(t, result.EntriesAdded, 0)
		added = result.EntriesAdded

		latest, err := env.Watermarks.Latest(env.Ctx)
		require.NoError(t, err)
		assert.Equal(t, today, latest.Date)
	})

	t.Run("rerun adds nothing", func(t *testing.T) {
		result, err := env.Service.ExtractDays(env.Ctx, []time.Time{seeded}, env.StoreTarget())
		require.NoError(t, err)
		assert.Equal(t, 0, result.EntriesAdded)
		assert.Greater(t, result.Days[0].Duplicates, 0)
	})

	t.Run("unauthenticated read is rejected", func(t *testing.T) {
		resp, err := env.get("/entries", "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("paged read marks entries delivered", func(t *testing.T) {
		seen := 0
		path := "/entries?limit=7&extracted=false"
		for {
			resp, err := env.Get(path)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var page entryPage
			require.NoError(t, json.Unmarshal(resp.Data, &page))
			seen += len(page.Items)
			if !page.HasMore {
				break
			}
			path = "/entries?limit=7&extracted=false&cursor=" + page.Cursor
		}
		assert.Equal(t, added, seen)

		env.EntryHandler.Wait()
		resp, err := env.Get("/entries?extracted=false")
		require.NoError(t, err)
		var page entryPage
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Empty(t, page.Items)
	})

	t.Run("watermarks are listed", func(t *testing.T) {
		resp, err := env.Get("/watermarks")
		require.NoError(t, err)
		var watermarks []struct {
			Date string `json:"date"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &watermarks))
		// the rerun recorded a second watermark for the seeded day
		require.Len(t, watermarks, 4)
		assert.Equal(t, today.Format("2006-01-02"), watermarks[0].Date)
	})

	t.Run("sweep removes delivered entries", func(t *testing.T) {
		removed, err := env.Service.RemoveExtractedEntries(env.Ctx, time.Now().Add(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(added), removed)

		resp, err := env.Get("/entries")
		require.NoError(t, err)
		var page entryPage
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Empty(t, page.Items)
	})
}

// TestE2E_CLIWorkflow drives the binary: seed fake data, export it to CSV.
func TestE2E_CLIWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinary()

	workDir := t.TempDir()

	t.Run("fake is refused in production", func(t *testing.T) {
		out, err := env.RunCoverstatsd(workDir, []string{"COVERSTATS_ENVIRONMENT=production"}, "fake", "07-12-2019")
		require.Error(t, err, out)
		assert.Contains(t, out, "production")
	})

	t.Run("fake seeds the day", func(t *testing.T) {
		out, err := env.RunCoverstatsd(workDir, nil, "fake", "07-12-2019")
		require.NoError(t, err, out)
		assert.Contains(t, out, "stats_07-12-2019")
		assert.Len(t, env.Search.Documents("stats_07-12-2019"), 10)
	})

	t.Run("export writes a csv", func(t *testing.T) {
		out, err := env.RunCoverstatsd(workDir, nil, "export", "--from", "07-12-2019", "--file", "day.csv")
		require.NoError(t, err, out)

		f, err := os.Open(filepath.Join(workDir, "day.csv"))
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Greater(t, len(rows), 1)
		assert.Equal(t, "elasticId", rows[0][0])
		assert.Equal(t, domain.ServiceClientID, rows[1][2])
	})

	t.Run("invalid types fail", func(t *testing.T) {
		out, err := env.RunCoverstatsd(workDir, nil, "export", "--from", "07-12-2019", "--types", "maybe")
		require.Error(t, err, out)
	})

	t.Run("invalid date fails", func(t *testing.T) {
		out, err := env.RunCoverstatsd(workDir, nil, "export", "--from", "2019-12-07")
		require.Error(t, err, out)
		assert.Contains(t, out, "dd-mm-yyyy")
	})
}
