// Package config loads the fedauth command's configuration: a YAML file,
// then environment overrides, then validation.
//
// Every environment variable also accepts a NAME_FILE form whose value is a
// path to read the setting from, which is how container secrets are mounted.
package config
