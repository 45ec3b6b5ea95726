// Package config loads the agent's settings with viper. Defaults are
// overridden by the file named in BGV_CONFIG_FILE, which is overridden by
// BGV_-prefixed environment variables; a local .env file is read into the
// environment first. Watch delivers revalidated settings when the file
// changes.
package config
