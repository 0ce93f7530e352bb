package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const schemaDir = "../../testdata"

var schemaFlags = []string{"--proto", schemaDir, "--proto-path", schemaDir}

// run executes the CLI with stdin and returns what it wrote to stdout and
// stderr.
func run(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func withSchema(args ...string) []string {
	return append(append([]string{}, schemaFlags...), args...)
}

func parseYAML(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	doc := map[string]interface{}{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	return doc
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		want  string
	}{
		{"yaml hex", "id: 123\nname: John\n", []string{"--format", "hex"}, "087b12044a6f686e\n"},
		{"json hex", `{"id": 123, "name": "John"}`, []string{"--format", "hex"}, "087b12044a6f686e\n"},
		{"base64", "id: 123\n", []string{"-f", "base64"}, "CHs=\n"},
		{"raw", "id: 1\n", nil, "\x08\x01"},
		{"delimited", "id: 1\n", []string{"--delimited"}, "\x02\x08\x01"},
		{"enum name", "status: USER_SUSPENDED\n", []string{"-f", "hex"}, "3002\n"},
		{"empty", "", []string{"-f", "hex"}, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := withSchema(append([]string{"encode", "benchmark.User"}, tt.args...)...)
			out, _, err := run(t, []byte(tt.input), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	_, _, err := run(t, []byte("id: abc\n"), withSchema("encode", "benchmark.User")...)
	assert.EqualError(t, err, "encode benchmark.User: id: integer expected")

	_, _, err = run(t, []byte("- 1\n- 2\n"), withSchema("encode", "benchmark.User")...)
	assert.ErrorContains(t, err, "parse document")

	_, _, err = run(t, nil, withSchema("encode", "benchmark.Missing")...)
	assert.ErrorContains(t, err, "message type not found")

	_, _, err = run(t, nil, withSchema("encode", "benchmark.User", "-f", "octal")...)
	assert.EqualError(t, err, `unknown payload format "octal"`)

	_, _, err = run(t, nil, withSchema("encode", "benchmark.User", "missing.yaml")...)
	assert.ErrorContains(t, err, "read input")

	_, _, err = run(t, nil, withSchema("encode")...)
	assert.Error(t, err)
}

func TestEncode_InputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: John\ntags: [a, b]\n"), 0o644))

	out, _, err := run(t, nil, withSchema("encode", "User", path, "-f", "hex")...)
	require.NoError(t, err)
	assert.Equal(t, "12044a6f686e520161520162\n", out)
}

func TestDecode(t *testing.T) {
	out, _, err := run(t, []byte{0x08, 0x7B, 0x12, 0x04, 'J', 'o', 'h', 'n'}, withSchema("decode", "benchmark.User")...)
	require.NoError(t, err)
	assert.Equal(t, "id: 123\nname: John\n", out)

	out, _, err = run(t, []byte("08 7b\n"), withSchema("decode", "benchmark.User", "--format", "hex")...)
	require.NoError(t, err)
	assert.Equal(t, "id: 123\n", out)

	out, _, err = run(t, []byte("CHs=\n"), withSchema("decode", "benchmark.User", "-f", "base64")...)
	require.NoError(t, err)
	assert.Equal(t, "id: 123\n", out)

	out, _, err = run(t, []byte{0x30, 0x01, 0x62, 0x01, 0xFF}, withSchema("decode", "benchmark.User")...)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "USER_ACTIVE", "avatar": "/w=="}, parseYAML(t, out))

	out, _, err = run(t, []byte{0x58, 0x05}, withSchema("decode", "benchmark.User", "--camel-case")...)
	require.NoError(t, err)
	assert.Equal(t, "createdAt: 5\n", out)

	out, _, err = run(t, nil, withSchema("decode", "benchmark.User")...)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", out)
}

func TestDecode_Defaults(t *testing.T) {
	out, _, err := run(t, nil, withSchema("decode", "common.Coordinates", "--defaults")...)
	require.NoError(t, err)
	assert.Equal(t, "latitude: 0\nlongitude: 0\n", out)

	out, _, err = run(t, nil, withSchema("decode", "benchmark.User", "--defaults")...)
	require.NoError(t, err)
	doc := parseYAML(t, out)
	assert.Equal(t, "USER_UNKNOWN", doc["status"])
	assert.Equal(t, []interface{}{}, doc["tags"])
	assert.Equal(t, map[string]interface{}{}, doc["metadata"])
	assert.Equal(t, "", doc["avatar"])
}

func TestDecode_Delimited(t *testing.T) {
	var stream []byte
	for _, input := range []string{"id: 1\n", "id: 2\nname: x\n"} {
		out, _, err := run(t, []byte(input), withSchema("encode", "benchmark.User", "--delimited")...)
		require.NoError(t, err)
		stream = append(stream, out...)
	}

	out, _, err := run(t, stream, withSchema("decode", "benchmark.User", "--delimited")...)
	require.NoError(t, err)
	assert.Equal(t, "id: 1\n---\nid: 2\nname: x\n", out)

	_, _, err = run(t, stream[:len(stream)-1], withSchema("decode", "benchmark.User", "--delimited")...)
	assert.ErrorContains(t, err, "decode benchmark.User #1")
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := run(t, []byte{0x0A, 0x05}, withSchema("decode", "benchmark.User")...)
	assert.ErrorContains(t, err, "decode benchmark.User")

	_, _, err = run(t, []byte("zz"), withSchema("decode", "benchmark.User", "-f", "hex")...)
	assert.ErrorContains(t, err, "decode hex payload")

	_, _, err = run(t, []byte("!!!"), withSchema("decode", "benchmark.User", "-f", "base64")...)
	assert.ErrorContains(t, err, "decode base64 payload")
}

func TestVerify(t *testing.T) {
	out, _, err := run(t, []byte("id: 1\nemail: a@b.c\naddress: {city: Paris}\n"), withSchema("verify", "benchmark.User")...)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, _, err = run(t, []byte("id: x\n"), withSchema("verify", "benchmark.User")...)
	assert.EqualError(t, err, "invalid benchmark.User: id: integer expected")

	_, _, err = run(t, []byte(`{"email": "a", "phone": "b"}`), withSchema("verify", "User")...)
	assert.EqualError(t, err, "invalid benchmark.User: contact_method: multiple values")
}

func TestList(t *testing.T) {
	out, _, err := run(t, nil, withSchema("list", "messages")...)
	require.NoError(t, err)
	assert.Equal(t, "benchmark.User\ncommon.Address\ncommon.Coordinates\n", out)

	out, _, err = run(t, nil, withSchema("list", "services")...)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = run(t, nil, withSchema("list")...)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"messages": []interface{}{"benchmark.User", "common.Address", "common.Coordinates"},
		"enums":    []interface{}{"benchmark.UserStatus"},
	}, parseYAML(t, out))

	_, _, err = run(t, nil, withSchema("list", "widgets")...)
	assert.Error(t, err)
}

func TestSchemaSources(t *testing.T) {
	_, _, err := run(t, nil, "list")
	assert.EqualError(t, err, "no schema: pass --proto or --descriptor-set")

	_, _, err = run(t, nil, withSchema("--descriptor-set", "set.pb", "list")...)
	assert.EqualError(t, err, "--descriptor-set cannot be combined with --proto")

	_, _, err = run(t, nil, "--descriptor-set", filepath.Join(t.TempDir(), "missing.pb"), "list")
	assert.ErrorContains(t, err, "failed to read descriptor set")

	_, _, err = run(t, nil, "--proto", filepath.Join(t.TempDir(), "missing.proto"), "list")
	assert.Error(t, err)
}

func TestLogging(t *testing.T) {
	_, stderr, err := run(t, nil, withSchema("--log-level", "debug", "encode", "benchmark.User")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "schema loaded")
	assert.Contains(t, stderr, "encoded message")
	assert.Contains(t, stderr, "app=pbcore")

	_, stderr, err = run(t, nil, withSchema("encode", "benchmark.User")...)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	_, _, err = run(t, nil, withSchema("--log-level", "loud", "list")...)
	assert.ErrorContains(t, err, "parse log level")
}

func TestConfigFile(t *testing.T) {
	payload := []byte{0x30, 0x01, 0x58, 0x05, 0x1A, 0x01, 'a'}

	out, _, err := run(t, payload, "--config", "testdata/pbcore.toml", "decode", "benchmark.User")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"status":         1,
		"created_at":     "5",
		"email":          "a",
		"contact_method": "email",
	}, parseYAML(t, out))

	// flags win over the file
	out, _, err = run(t, payload, "-c", "testdata/pbcore.toml", "decode", "benchmark.User", "--camel-case")
	require.NoError(t, err)
	assert.Contains(t, parseYAML(t, out), "createdAt")

	_, _, err = run(t, payload, "-c", "testdata/pbcore.toml", "--proto", filepath.Join(t.TempDir(), "none"), "list")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("testdata/pbcore.toml")
	require.NoError(t, err)
	assert.Equal(t, []string{schemaDir}, cfg.ProtoPaths)
	assert.Equal(t, []string{schemaDir}, cfg.Files)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 32, cfg.MaxDepth)
	assert.True(t, cfg.Output.Oneofs)
	assert.False(t, cfg.Output.Defaults)
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pbcore.toml")
	abs, err := filepath.Abs(schemaDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("files = [%q]\ndescriptor_set = \"set.pb\"\n", abs)), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, cfg.Files)
	assert.Equal(t, filepath.Join(dir, "set.pb"), cfg.DescriptorSet)
	assert.Nil(t, cfg.ProtoPaths)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Equal(t, defaultConfig().Output, cfg.Output)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "proto_dirs = []\n", "load config: unknown keys proto_dirs"},
		{"unknown output key", "[output]\ncolour = true\n", "load config: unknown keys output.colour"},
		{"bad longs", "[output]\nlongs = \"hex\"\n", `parse output.longs: unknown format "hex"`},
		{"bad enums", "[output]\nenums = \"names\"\n", `parse output.enums: unknown format "names"`},
		{"bad bytes", "[output]\nbytes = \"hex\"\n", `parse output.bytes: unknown format "hex"`},
		{"negative depth", "max_depth = -1\n", "parse max_depth: must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pbcore.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := loadConfig(path)
			assert.EqualError(t, err, tt.wantErr)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "load config")

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("files = [\n"), 0o644))
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "load config")
}
