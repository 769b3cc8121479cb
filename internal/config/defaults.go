package config

const (
	// EngineSQLite stores artifacts in a local SQLite file.
	EngineSQLite = "sqlite"
	// EnginePostgres stores artifacts in PostgreSQL.
	EnginePostgres = "postgres"
)

const (
	defaultConfigPath               = "~/.config/codeflow/config.toml"
	defaultDataDir                  = "~/.local/share/codeflow"
	defaultAPIBind                  = "127.0.0.1:7490"
	defaultSandboxURL               = "http://localhost:5000"
	defaultSandboxBind              = "127.0.0.1:5000"
	defaultSandboxTimeoutSeconds    = 10
	defaultSandboxMaxTimeoutSeconds = 120
	defaultSandboxGraceSeconds      = 5
	defaultSandboxMaxOutputBytes    = 1 << 20
	defaultSubmissionMaxBytes       = 1 << 20
	defaultErrorRetryInterval       = 5
	defaultStatusStoreTimeout       = 5
	defaultMinFreeSpaceMiB          = 64
	defaultPreflightTimeoutSeconds  = 5
	defaultNotifyRequestTimeout     = 10
	defaultEventSubjectPrefix       = "codeflow"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

func defaultTransformCommand() []string {
	return []string{"sh", "-c", "./run.sh {input}"}
}

func defaultExtensions() []string {
	return []string{".c"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Database: Database{
			Engine: EngineSQLite,
		},
		Sandbox: Sandbox{
			URL:               defaultSandboxURL,
			Bind:              defaultSandboxBind,
			TimeoutSeconds:    defaultSandboxTimeoutSeconds,
			MaxTimeoutSeconds: defaultSandboxMaxTimeoutSeconds,
			GraceSeconds:      defaultSandboxGraceSeconds,
			MaxOutputBytes:    defaultSandboxMaxOutputBytes,
			RequiredBinaries:  []string{"sh"},
		},
		Transform: Transform{
			Command: defaultTransformCommand(),
		},
		Submission: Submission{
			Extensions: defaultExtensions(),
			MaxBytes:   defaultSubmissionMaxBytes,
		},
		Workflow: Workflow{
			ReconcileFailed:     true,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			StatusStoreTimeout:  defaultStatusStoreTimeout,
			MinFreeSpaceMiB:     defaultMinFreeSpaceMiB,
			PreflightSandbox:    true,
			PreflightTimeoutSec: defaultPreflightTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Processed:      true,
			Failed:         true,
		},
		Events: Events{
			SubjectPrefix: defaultEventSubjectPrefix,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
