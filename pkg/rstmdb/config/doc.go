/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
It is the loading layer behind rstmdb.ConfigFromFile: client settings live in
a YAML or JSON file and are extracted without verbose type assertions.

# Basic Usage

	cfg := config.New(map[string]any{
	    "host":            "db.internal",
	    "port":            7401,
	    "tls":             true,
	    "request_timeout": "30s",
	})

	host := cfg.String("host", "127.0.0.1")                    // "db.internal"
	port := cfg.Int("port", 7401)                              // 7401
	tls := cfg.Bool("tls", false)                              // true
	timeout := cfg.Duration("request_timeout", 10*time.Second) // 30s

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1m30s")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

All methods return the default value if the key is missing, the value cannot
be converted, or the conversion would lose precision.

# File Loading

	cfg, err := config.FromFile("rstmdb.yaml")
	if err != nil {
	    log.Fatal(err)
	}

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
