package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wanglam/pbcore/message"
)

// cliConfig is the effective configuration after defaults, the config file
// and flags are applied.
type cliConfig struct {
	ProtoPaths    []string
	Files         []string
	DescriptorSet string
	LogLevel      string
	MaxDepth      int
	Output        message.ObjectOptions
}

type fileConfig struct {
	ProtoPaths    []string     `toml:"proto_paths"`
	Files         []string     `toml:"files"`
	DescriptorSet string       `toml:"descriptor_set"`
	LogLevel      string       `toml:"log_level"`
	MaxDepth      int          `toml:"max_depth"`
	Output        outputConfig `toml:"output"`
}

type outputConfig struct {
	Defaults  bool   `toml:"defaults"`
	Arrays    bool   `toml:"arrays"`
	Objects   bool   `toml:"objects"`
	Oneofs    bool   `toml:"oneofs"`
	Longs     string `toml:"longs"`
	Enums     string `toml:"enums"`
	Bytes     string `toml:"bytes"`
	CamelCase bool   `toml:"camel_case"`
}

func defaultConfig() cliConfig {
	return cliConfig{
		LogLevel: defaultLogLevel,
		Output: message.ObjectOptions{
			Enums: message.EnumsString,
			Bytes: message.BytesBase64,
		},
	}
}

// loadConfig reads a TOML config file. Relative paths in it are taken
// relative to the file's directory.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return cliConfig{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	base := filepath.Dir(path)
	if meta.IsDefined("proto_paths") {
		cfg.ProtoPaths = resolvePaths(base, raw.ProtoPaths)
	}
	if meta.IsDefined("files") {
		cfg.Files = resolvePaths(base, raw.Files)
	}
	if meta.IsDefined("descriptor_set") {
		cfg.DescriptorSet = resolvePath(base, raw.DescriptorSet)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}
	if meta.IsDefined("max_depth") {
		if raw.MaxDepth < 0 {
			return cliConfig{}, fmt.Errorf("parse max_depth: must not be negative")
		}
		cfg.MaxDepth = raw.MaxDepth
	}

	out := &cfg.Output
	out.Defaults = raw.Output.Defaults
	out.Arrays = raw.Output.Arrays
	out.Objects = raw.Output.Objects
	out.Oneofs = raw.Output.Oneofs
	out.CamelCase = raw.Output.CamelCase
	if meta.IsDefined("output", "longs") {
		if out.Longs, err = parseLongs(raw.Output.Longs); err != nil {
			return cliConfig{}, err
		}
	}
	if meta.IsDefined("output", "enums") {
		if out.Enums, err = parseEnums(raw.Output.Enums); err != nil {
			return cliConfig{}, err
		}
	}
	if meta.IsDefined("output", "bytes") {
		if out.Bytes, err = parseBytes(raw.Output.Bytes); err != nil {
			return cliConfig{}, err
		}
	}
	return cfg, nil
}

func resolvePaths(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, resolvePath(base, p))
	}
	return out
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func parseLongs(s string) (message.LongFormat, error) {
	switch strings.ToLower(s) {
	case "native", "":
		return message.LongsNative, nil
	case "string":
		return message.LongsString, nil
	case "number":
		return message.LongsNumber, nil
	}
	return 0, fmt.Errorf("parse output.longs: unknown format %q", s)
}

func parseEnums(s string) (message.EnumFormat, error) {
	switch strings.ToLower(s) {
	case "number", "":
		return message.EnumsNumber, nil
	case "string":
		return message.EnumsString, nil
	}
	return 0, fmt.Errorf("parse output.enums: unknown format %q", s)
}

func parseBytes(s string) (message.BytesFormat, error) {
	switch strings.ToLower(s) {
	case "native", "":
		return message.BytesNative, nil
	case "base64":
		return message.BytesBase64, nil
	case "array":
		return message.BytesArray, nil
	}
	return 0, fmt.Errorf("parse output.bytes: unknown format %q", s)
}
