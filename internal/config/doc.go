// Package config provides configuration loading and validation for the relay.
package config
