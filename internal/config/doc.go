// Package config provides the configuration of a peercrawl node: its own
// identity and address, the seed peers it bootstraps from, crawl and index
// acceptance settings, outbound transport and the maintenance schedule.
//
// Values start from NewConfig, are overridden by the YAML file (.peercrawl)
// and finally by command line flags.
package config
