// Package config defines the glmigrate configuration schema, its defaults,
// struct-tag validation, and starter template generation.
package config
