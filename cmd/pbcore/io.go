package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Binary payload formats accepted by --format.
const (
	formatRaw    = "raw"
	formatHex    = "hex"
	formatBase64 = "base64"
)

// readInput reads args[pos], or stdin when it is absent or "-".
func readInput(cmd *cobra.Command, args []string, pos int) ([]byte, error) {
	if len(args) <= pos || args[pos] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[pos])
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// readDocument parses a YAML or JSON object.
func readDocument(data []byte) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func writeDocuments(w io.Writer, docs ...map[string]interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
	}
	return enc.Close()
}

func decodePayload(data []byte, format string) ([]byte, error) {
	switch format {
	case formatRaw:
		return data, nil
	case formatHex:
		out, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return nil, fmt.Errorf("decode hex payload: %w", err)
		}
		return out, nil
	case formatBase64:
		out, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown payload format %q", format)
}

func encodePayload(data []byte, format string) ([]byte, error) {
	switch format {
	case formatRaw:
		return data, nil
	case formatHex:
		return []byte(hex.EncodeToString(data) + "\n"), nil
	case formatBase64:
		return []byte(base64.StdEncoding.EncodeToString(data) + "\n"), nil
	}
	return nil, fmt.Errorf("unknown payload format %q", format)
}
