package unitconfig

// DefaultDefinitions returns the built-in unit set written on first run.
func DefaultDefinitions() *Definitions {
	defs, err := NewDefinitions(
		UnitDefinition{
			Name:             "Main Centrifugo",
			Kind:             UnitKindProcess,
			WorkingDirectory: `D:\wamp\www\srplh\servers\cfgo\`,
			CommandLine:      []string{"centrifugo", "-c", "config.json"},
		},
		UnitDefinition{
			Name:             "CS Centrifugo",
			Kind:             UnitKindProcess,
			WorkingDirectory: `D:\wamp\www\srplh\servers\cfgo\`,
			CommandLine:      []string{"centrifugo", "-c", "csconfig.json"},
		},
		UnitDefinition{
			Name:             "Worker",
			Kind:             UnitKindProcess,
			WorkingDirectory: `D:\wamp\www\srplh\servers\workers\`,
			CommandLine:      []string{"php", "worker.php"},
		},
		UnitDefinition{
			Name:            "Cron Task",
			Kind:            UnitKindCron,
			URL:             "https://srplh.test/cron/tasks",
			IntervalSeconds: 60,
		},
		UnitDefinition{
			Name:             "Memcached",
			Kind:             UnitKindProcess,
			WorkingDirectory: `C:\memcached\bin\`,
			CommandLine:      []string{"memcached.exe"},
		},
		UnitDefinition{
			Name:             "Ngrok",
			Kind:             UnitKindProcess,
			WorkingDirectory: "",
			CommandLine:      []string{"ngrok", "http", "--domain=in-unicorn-smart.ngrok-free.app", "80"},
			KillImage:        "ngrok.exe",
			EditableCommand:  true,
		},
		UnitDefinition{
			Name:             "Tika",
			Kind:             UnitKindProcess,
			WorkingDirectory: `C:\Tika`,
			CommandLine:      []string{"java", "-jar", "tika-server-standard-2.8.0.jar"},
			KillImage:        "java.exe",
			EditableCommand:  true,
		},
	)
	if err != nil {
		panic(err)
	}
	return defs
}
