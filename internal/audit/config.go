package audit

// Config holds the recognized audit configuration options (spec.md §6).
type Config struct {
	LogDir               string
	MaxFileSize          int64
	RetentionDays         int
	QueueCapacity        int
	EnableConsoleOutput  bool
}

// DefaultConfig returns sane defaults for local/dev use.
func DefaultConfig(logDir string) Config {
	return Config{
		LogDir:              logDir,
		MaxFileSize:         64 * 1024 * 1024,
		RetentionDays:       30,
		QueueCapacity:       4096,
		EnableConsoleOutput: false,
	}
}
