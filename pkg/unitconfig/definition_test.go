package unitconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-desk/pkg/errors"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestDefaultDefinitions(t *testing.T) {
	defs := DefaultDefinitions()
	require.Equal(t, 7, defs.Len())

	cron, ok := defs.Get("Cron Task")
	require.True(t, ok)
	assert.Equal(t, UnitKindCron, cron.Kind)
	assert.Equal(t, 60, cron.IntervalSeconds)

	ngrok, _ := defs.Get("Ngrok")
	assert.Equal(t, "ngrok.exe", ngrok.KillImage)
	assert.True(t, ngrok.EditableCommand)
	assert.Equal(t, "", ngrok.WorkingDirectory)

	tika, _ := defs.Get("Tika")
	assert.Equal(t, "java.exe", tika.KillImage)

	worker, _ := defs.Get("Worker")
	assert.Empty(t, worker.KillImage)
	assert.False(t, worker.EditableCommand)
}

func TestDefinitions_GetReturnsCopy(t *testing.T) {
	defs := DefaultDefinitions()
	worker, _ := defs.Get("Worker")
	worker.CommandLine[0] = "mutated"

	again, _ := defs.Get("Worker")
	assert.Equal(t, "php", again.CommandLine[0])
}

func TestDefinitions_WithDoesNotMutateReceiver(t *testing.T) {
	defs := DefaultDefinitions()
	worker, _ := defs.Get("Worker")
	worker.WorkingDirectory = "/elsewhere"

	updated, err := defs.With(worker)
	require.NoError(t, err)

	old, _ := defs.Get("Worker")
	now, _ := updated.Get("Worker")
	assert.NotEqual(t, "/elsewhere", old.WorkingDirectory)
	assert.Equal(t, "/elsewhere", now.WorkingDirectory)
}

func TestNewDefinitions_RejectsDuplicates(t *testing.T) {
	def := UnitDefinition{Name: "A", Kind: UnitKindProcess, CommandLine: []string{"a"}}
	_, err := NewDefinitions(def, def)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		def     UnitDefinition
		wantErr bool
	}{
		{"process ok", UnitDefinition{Name: "p", Kind: UnitKindProcess, CommandLine: []string{"x"}}, false},
		{"process with empty dir ok", UnitDefinition{Name: "p", Kind: UnitKindProcess, WorkingDirectory: "", CommandLine: []string{"x", "-y"}}, false},
		{"no name", UnitDefinition{Kind: UnitKindProcess, CommandLine: []string{"x"}}, true},
		{"no command", UnitDefinition{Name: "p", Kind: UnitKindProcess}, true},
		{"process with url", UnitDefinition{Name: "p", Kind: UnitKindProcess, CommandLine: []string{"x"}, URL: "https://a"}, true},
		{"kill image path", UnitDefinition{Name: "p", Kind: UnitKindProcess, CommandLine: []string{"x"}, KillImage: `C:\java.exe`}, true},
		{"cron ok", UnitDefinition{Name: "c", Kind: UnitKindCron, URL: "https://a.test/x", IntervalSeconds: 1}, false},
		{"cron bad scheme", UnitDefinition{Name: "c", Kind: UnitKindCron, URL: "ftp://a.test", IntervalSeconds: 1}, true},
		{"cron negative interval", UnitDefinition{Name: "c", Kind: UnitKindCron, URL: "https://a.test", IntervalSeconds: -1}, true},
		{"cron with command", UnitDefinition{Name: "c", Kind: UnitKindCron, URL: "https://a.test", IntervalSeconds: 1, CommandLine: []string{"x"}}, true},
		{"unknown kind", UnitDefinition{Name: "u", Kind: "daemon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(tt.def)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverrides_ApplyProcess(t *testing.T) {
	defs := DefaultDefinitions()
	ngrok, _ := defs.Get("Ngrok")

	merged, err := Overrides{
		WorkingDirectory: strPtr("  /opt/ngrok "),
		CommandLine:      ParseCommandLine("ngrok  http 8080"),
	}.Apply(ngrok)
	require.NoError(t, err)
	assert.Equal(t, "/opt/ngrok", merged.WorkingDirectory)
	assert.Equal(t, []string{"ngrok", "http", "8080"}, merged.CommandLine)
	assert.Equal(t, "ngrok.exe", merged.KillImage)

	// The source definition is untouched
	assert.Equal(t, "", ngrok.WorkingDirectory)
}

func TestOverrides_CommandOnlyForEditableUnits(t *testing.T) {
	worker, _ := DefaultDefinitions().Get("Worker")

	_, err := Overrides{CommandLine: []string{"php", "other.php"}}.Apply(worker)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	merged, err := Overrides{WorkingDirectory: strPtr("/srv")}.Apply(worker)
	require.NoError(t, err)
	assert.Equal(t, "/srv", merged.WorkingDirectory)
}

func TestOverrides_ApplyCron(t *testing.T) {
	cron, _ := DefaultDefinitions().Get("Cron Task")

	merged, err := Overrides{URL: strPtr("http://localhost:9000/tick"), IntervalSeconds: intPtr(5)}.Apply(cron)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/tick", merged.URL)
	assert.Equal(t, 5, merged.IntervalSeconds)

	_, err = Overrides{IntervalSeconds: intPtr(0)}.Apply(cron)
	assert.Error(t, err)

	_, err = Overrides{WorkingDirectory: strPtr("/x")}.Apply(cron)
	assert.Error(t, err)
}

func TestOverrides_EmptyCommandRejected(t *testing.T) {
	tika, _ := DefaultDefinitions().Get("Tika")
	_, err := Overrides{CommandLine: ParseCommandLine("   ")}.Apply(tika)
	assert.Error(t, err)
	assert.True(t, Overrides{}.IsEmpty())
}
