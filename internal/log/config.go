package log

// Config selects the level, line pattern and outputs of the logger.
type Config struct {
	Level     string           `mapstructure:"level" yaml:"level"`
	Pattern   string           `mapstructure:"pattern" yaml:"pattern"`
	Time      string           `mapstructure:"time" yaml:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders" yaml:"appenders"`
}

// AppenderConfig is one output. Type is "stderr" (the default), "console" (stdout) or "file".
type AppenderConfig struct {
	Type string          `mapstructure:"type" yaml:"type"`
	File FileAppenderOpt `mapstructure:"file" yaml:"file,omitempty"`
}

const (
	DefaultPattern = "%time [%level] %caller: %msg %field%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Pattern:   DefaultPattern,
		Time:      DefaultTime,
		Appenders: []AppenderConfig{{Type: "stderr"}},
	}
}
