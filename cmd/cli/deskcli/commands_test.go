package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-desk/pkg/domain"
)

func TestOverrideOptions_EmptyLeavesDefinition(t *testing.T) {
	assert.True(t, overrideOptions{}.overrides().IsEmpty())
}

func TestOverrideOptions_Mapping(t *testing.T) {
	overrides := overrideOptions{
		Dir:      "/srv/tika",
		Command:  "java -jar  tika-server.jar",
		URL:      "https://desk.test/cron",
		Interval: 15,
	}.overrides()

	require.NotNil(t, overrides.WorkingDirectory)
	assert.Equal(t, "/srv/tika", *overrides.WorkingDirectory)
	assert.Equal(t, []string{"java", "-jar", "tika-server.jar"}, overrides.CommandLine)
	require.NotNil(t, overrides.URL)
	assert.Equal(t, "https://desk.test/cron", *overrides.URL)
	require.NotNil(t, overrides.IntervalSeconds)
	assert.Equal(t, 15, *overrides.IntervalSeconds)
}

func TestUnitDetail(t *testing.T) {
	assert.Equal(t, "every 60s https://desk.test/cron", unitDetail(domain.UnitInfo{
		Kind: "cron", URL: "https://desk.test/cron", IntervalSeconds: 60,
	}))
	assert.Equal(t, "php worker.php (exit code 3)", unitDetail(domain.UnitInfo{
		Kind: "process", State: "exited", CommandLine: []string{"php", "worker.php"}, LastExit: "exit code 3",
	}))
	assert.Equal(t, "php worker.php", unitDetail(domain.UnitInfo{
		Kind: "process", State: "running", CommandLine: []string{"php", "worker.php"}, LastExit: "exit code 3",
	}))
}
