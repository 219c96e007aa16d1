package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog/config"
)

const (
	configFlagName  = "config"
	configFlagShort = "c"
	configFlagUsage = "path to a YAML configuration file"

	urlFlagName  = "url"
	urlFlagUsage = "Loki push endpoint, e.g. http://localhost:3100"

	jobFlagName  = "job"
	jobFlagUsage = "job tag and default logger name"

	envFlagName  = "env"
	envFlagUsage = "env tag"

	tagFlagName  = "tag"
	tagFlagUsage = `extra stream tag as key=value; can be repeated`

	protocolFlagName  = "protocol"
	protocolFlagUsage = "push protocol: 0 (legacy JSON), 1 (JSON) or proto"

	noConsoleFlagName  = "no-console"
	noConsoleFlagUsage = "do not echo records to stderr"
)

var errInvalidTag = errors.New("invalid tag, expected key=value")

// GlobalFlags are the persistent flags every shipping command shares. Flags
// override the configuration file and LOKILOG_* variables.
type GlobalFlags struct {
	configPath string
	url        string
	job        string
	env        string
	tags       []string
	protocol   string
	noConsole  bool
}

// AddFlags registers the persistent flags on cmd.
func (f *GlobalFlags) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&f.configPath, configFlagName, configFlagShort, "", heredoc.Doc(configFlagUsage))
	flags.StringVar(&f.url, urlFlagName, "", heredoc.Doc(urlFlagUsage))
	flags.StringVar(&f.job, jobFlagName, "", heredoc.Doc(jobFlagUsage))
	flags.StringVar(&f.env, envFlagName, "", heredoc.Doc(envFlagUsage))
	flags.StringArrayVar(&f.tags, tagFlagName, nil, heredoc.Doc(tagFlagUsage))
	flags.StringVar(&f.protocol, protocolFlagName, "", heredoc.Doc(protocolFlagUsage))
	flags.BoolVar(&f.noConsole, noConsoleFlagName, false, heredoc.Doc(noConsoleFlagUsage))
}

// toConfig reads file and environment, applies the flags the user set and
// validates the result.
func (f *GlobalFlags) toConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Read(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	changed := func(name string) bool {
		fl := cmd.Flag(name)
		return fl != nil && fl.Changed
	}
	if changed(urlFlagName) {
		cfg.URL = f.url
	}
	if changed(jobFlagName) {
		cfg.JobName = f.job
	}
	if changed(envFlagName) {
		cfg.Env = f.env
	}
	if changed(protocolFlagName) {
		cfg.ProtocolVersion = f.protocol
	}
	if f.noConsole {
		cfg.Console = false
	}
	if len(f.tags) > 0 {
		tags, err := parseTags(f.tags)
		if err != nil {
			return config.Config{}, err
		}
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			cfg.Tags[k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseTags(raw []string) (map[string]string, error) {
	tags := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidTag, kv)
		}
		tags[k] = v
	}
	return tags, nil
}
