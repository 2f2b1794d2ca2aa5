package discovery

import (
	"github.com/spf13/viper"
)

// NewRegistryFromViper builds a registry from viper configuration. Recognized
// keys: base_dir, commands_dir, skills_dir, agents_dir, cache_max_entries,
// poll_interval, watch_notify. Unset keys keep their defaults.
func NewRegistryFromViper() (*Registry, error) {
	var opts []Option

	if dir := viper.GetString("base_dir"); dir != "" {
		opts = append(opts, WithBaseDir(dir))
	}
	if dir := viper.GetString("commands_dir"); dir != "" {
		opts = append(opts, WithCommandsDir(dir))
	}
	if dir := viper.GetString("skills_dir"); dir != "" {
		opts = append(opts, WithSkillsDir(dir))
	}
	if dir := viper.GetString("agents_dir"); dir != "" {
		opts = append(opts, WithAgentsDir(dir))
	}
	if n := viper.GetInt("cache_max_entries"); n > 0 {
		opts = append(opts, WithCacheMaxEntries(n))
	}
	if interval := viper.GetDuration("poll_interval"); interval > 0 {
		opts = append(opts, WithPollInterval(interval))
	}
	if viper.GetBool("watch_notify") {
		opts = append(opts, WithNotify(true))
	}

	return NewRegistry(opts...)
}
