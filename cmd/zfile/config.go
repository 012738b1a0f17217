// Copyright The zfile Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blockfile/zfile/lib/zfcodec"
	"github.com/blockfile/zfile/lib/zfile"
)

// defaultsFile holds optional defaults for the CLI's flags, loaded
// from an explicit --defaults path. There is no automatic discovery
// or fallback: an unset --defaults simply means built-in defaults
// apply.
type defaultsFile struct {
	BlockSize uint32 `yaml:"block_size"`
	Algorithm string `yaml:"algorithm"`
	Level     int    `yaml:"level"`
	Verify    bool   `yaml:"verify"`
	Workers   int    `yaml:"workers"`
}

func loadDefaultsFile(path string) (defaultsFile, error) {
	df := defaultsFile{
		BlockSize: 1 << 20,
		Algorithm: "lz4",
		Level:     0,
		Verify:    true,
		Workers:   1,
	}
	if path == "" {
		return df, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaultsFile{}, fmt.Errorf("reading defaults file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &df); err != nil {
		return defaultsFile{}, fmt.Errorf("parsing defaults file %s: %w", path, err)
	}
	return df, nil
}

// compressOptions resolves the defaults file plus CLI overrides into
// a [zfile.CompressOptions], validating the algorithm name.
func (df defaultsFile) compressOptions() (zfile.CompressOptions, error) {
	algo, err := zfcodec.ParseAlgorithm(df.Algorithm)
	if err != nil {
		return zfile.CompressOptions{}, err
	}
	return zfile.CompressOptions{
		Algorithm: uint8(algo),
		Verify:    df.Verify,
		Level:     uint8(df.Level),
		BlockSize: df.BlockSize,
	}, nil
}
