package config

import "github.com/spf13/pflag"

// Flags holds the small set of process-start overlays that make sense as
// command-line flags rather than environment variables: which instance to
// bind to, and where to find the optional YAML overlay file.
type Flags struct {
	Addr     string
	YAMLPath string
}

// ParseFlags parses os.Args (via pflag.CommandLine) into a Flags value.
// Call before config.Load so the YAML path is available.
func ParseFlags() *Flags {
	f := &Flags{}
	pflag.StringVar(&f.Addr, "addr", "", "override the listen address (host:port); defaults to :$PORT")
	pflag.StringVar(&f.YAMLPath, "config", "", "path to an optional YAML configuration overlay")
	pflag.Parse()
	return f
}

// ApplyTo overlays any flags explicitly set onto cfg.
func (f *Flags) ApplyTo(cfg *Config) {
	if f.Addr != "" {
		cfg.Port = f.Addr
	}
}
