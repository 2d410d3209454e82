package steps

import (
	"io"
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopqa/authcache/internal/auth"
	"github.com/shopqa/authcache/internal/session"
	"github.com/shopqa/authcache/internal/testutil"
)

const authFeature = `Feature: Lazy login with session reuse

  Scenario: First login publishes a session
    Given I am logged in as "standard"
    Then I should be on the authenticated page
    And the session should come from "login"

  Scenario: Later scenarios reuse the session
    Given I am logged in as "standard"
    Then I should be on the authenticated page
    And the session should come from "cache"

  Scenario: Locked out user sees an error
    When I attempt to login as "locked_out"
    Then I should see the login error containing "locked out"

  Scenario Outline: Every active role can log in
    Given I am logged in as "<role>"
    Then I should be on the authenticated page

    Examples:
      | role               |
      | problem            |
      | performance_glitch |
      | error              |
      | visual             |
`

func TestAuthFeature(t *testing.T) {
	cfg := testutil.TestConfig(t)
	site := testutil.NewFakeSite(cfg.Site, testutil.Directory(t, cfg))
	driver := testutil.NewFakeDriver(site)
	manager, err := auth.NewManager(auth.Deps{
		Config: cfg,
		Driver: driver,
		Store:  session.NewStore(cfg.Paths.AuthDir),
	})
	require.NoError(t, err)

	suite := godog.TestSuite{
		Name: "auth",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			InitializeScenario(sc, Deps{Config: cfg, Manager: manager, Driver: driver})
		},
		Options: &godog.Options{
			Format:          "progress",
			Strict:          true,
			Concurrency:     1,
			TestingT:        t,
			FeatureContents: []godog.Feature{{Name: "auth.feature", Contents: []byte(authFeature)}},
		},
	}
	require.Equal(t, 0, suite.Run(), "auth feature failed")

	assert.Equal(t, 1, site.LoginCount("standard_user"), "the second scenario must reuse the session")
	assert.Equal(t, 0, site.LoginCount("locked_out_user"))
	assert.Equal(t, 0, driver.OpenContexts(), "scenarios must close their contexts")
}

const undefinedRoleFeature = `Feature: Unknown roles

  Scenario: Typo in a role name
    Given I am logged in as "standrd"
`

func TestAuthFeature_UnknownRoleFails(t *testing.T) {
	cfg := testutil.TestConfig(t)
	site := testutil.NewFakeSite(cfg.Site, testutil.Directory(t, cfg))
	driver := testutil.NewFakeDriver(site)
	manager, err := auth.NewManager(auth.Deps{Config: cfg, Driver: driver, Store: session.NewStore(cfg.Paths.AuthDir)})
	require.NoError(t, err)

	status := godog.TestSuite{
		Name: "unknown-role",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			InitializeScenario(sc, Deps{Config: cfg, Manager: manager, Driver: driver})
		},
		Options: &godog.Options{
			Format:          "progress",
			Output:          io.Discard,
			FeatureContents: []godog.Feature{{Name: "unknown.feature", Contents: []byte(undefinedRoleFeature)}},
		},
	}.Run()

	assert.NotEqual(t, 0, status)
	assert.Equal(t, 0, site.TotalLogins())
}
