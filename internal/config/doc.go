// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, an optional dotenv file, CLI flags) with precedence:
// CLI flags > YAML config > Environment variables > Defaults. Besides the HTTP
// server settings it carries the search defaults (threshold, max items,
// strategy, budgets) and the container grid dimensions.
package config
