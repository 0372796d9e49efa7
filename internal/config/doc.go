// Package config handles YAML configuration loading with environment variable
// substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. A .env file next to the working directory is loaded first
// when present, so secrets can stay out of the YAML.
package config
