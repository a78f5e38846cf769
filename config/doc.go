// Package config provides the hierarchical, YAML-backed configuration for a
// diff run: matching-step weight overrides, worker-pool size, the
// basic-block minimum instruction count the hash-matching step requires,
// and the library-detection toggle. It is loaded with gopkg.in/yaml.v3 and
// customized afterward with functional options.
package config
