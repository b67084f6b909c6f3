package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsdigest/pkg/domain"
)

func setupTestDB(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewRepositories(context.Background(), Config{
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repos.Close()) })
	return repos
}

func TestRepositories_Integration(t *testing.T) {
	repos := setupTestDB(t)
	require.NoError(t, repos.Ping(context.Background()))

	// schema init is idempotent
	require.NoError(t, initSchema(context.Background(), repos.DB))
}

func TestSpamRepository(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	urls, err := repos.Spam.SpamURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)

	require.NoError(t, repos.Spam.ReportSpam(ctx, domain.SpamReport{URL: "https://ziua.ro/b", Origin: "ziua.ro", Title: "ad"}))
	require.NoError(t, repos.Spam.ReportSpam(ctx, domain.SpamReport{URL: "https://other.ro/a", Origin: "other.ro"}))
	require.NoError(t, repos.Spam.ReportSpam(ctx, domain.SpamReport{URL: "https://ziua.ro/b", Origin: "ziua.ro", Title: "ad again", Reason: "promo"}))

	urls, err = repos.Spam.SpamURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://other.ro/a", "https://ziua.ro/b"}, urls)

	reports, err := repos.Spam.SpamReports(ctx, "ziua.ro")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "ad again", reports[0].Title)
	assert.Equal(t, "promo", reports[0].Reason)
	assert.False(t, reports[0].ReportedAt.IsZero())

	all, err := repos.Spam.SpamReports(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repos.Spam.UnreportSpam(ctx, "https://ziua.ro/b"))
	require.NoError(t, repos.Spam.UnreportSpam(ctx, "https://never.ro/x"), "missing flag is fine")
	urls, err = repos.Spam.SpamURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://other.ro/a"}, urls)

	err = repos.Spam.ReportSpam(ctx, domain.SpamReport{})
	require.EqualError(t, err, "report spam: empty url")
}

func TestRuleRepository(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	_, ok, err := repos.Rule.GetRule(ctx, "ziua.ro")
	require.NoError(t, err)
	assert.False(t, ok)

	rule := domain.RuleConfig{DateSelectors: []string{"time.pub"}, DateRegex: `\d{4}`, UseJSONLD: true, TitleSelectors: []string{"h1"}}
	require.NoError(t, repos.Rule.SaveRule(ctx, "https://www.ziua.ro/some/article", rule))

	got, ok, err := repos.Rule.GetRule(ctx, "ziua.ro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule, got)

	// replaced on save, looked up by any form of the origin
	rule2 := domain.RuleConfig{UseDataLayer: true, DataLayerVar: "dl"}
	require.NoError(t, repos.Rule.SaveRule(ctx, "ZIUA.ro", rule2))
	got, ok, err = repos.Rule.GetRule(ctx, "www.ziua.ro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule2, got)

	require.NoError(t, repos.Rule.SaveRule(ctx, "other.ro", rule))
	origins, err := repos.Rule.Origins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other.ro", "ziua.ro"}, origins)

	require.EqualError(t, repos.Rule.SaveRule(ctx, " ", rule), "save rule: empty origin")
}

func TestRuleRepository_BrokenRule(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, err := repos.DB.ExecContext(ctx, "INSERT INTO extraction_rules (origin, rule) VALUES ('x.ro', 'not json')")
	require.NoError(t, err)

	_, _, err = repos.Rule.GetRule(ctx, "x.ro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal rule for x.ro")
}

func TestWithRetry(t *testing.T) {
	t.Run("retries lock errors", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on critical error", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return &criticalError{err: errors.New("constraint failed")}
		})
		require.EqualError(t, err, "constraint failed")
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up on persistent lock", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return errors.New("database table is locked")
		})
		require.Error(t, err)
		assert.Greater(t, calls, 1, "retried before giving up")
	})
}

func TestIsLockError(t *testing.T) {
	assert.False(t, isLockError(nil))
	assert.True(t, isLockError(errors.New("SQLITE_BUSY")))
	assert.True(t, isLockError(errors.New("database is locked")))
	assert.False(t, isLockError(errors.New("no such table")))
}
