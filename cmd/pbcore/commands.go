package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wanglam/pbcore/message"
	"github.com/wanglam/pbcore/wire"
)

func encodeCmd(opts *globalOptions) *cobra.Command {
	var (
		format    string
		delimited bool
	)

	cmd := &cobra.Command{
		Use:   "encode <type> [input]",
		Short: "Encode a YAML or JSON document as a protobuf message",
		Long: `Encode reads a document from the input file (stdin when omitted or
"-"), checks it against the message type and writes the wire form.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load()
			if err != nil {
				return err
			}
			desc, err := p.MessageType(args[0])
			if err != nil {
				return err
			}

			input, err := readInput(cmd, args, 1)
			if err != nil {
				return err
			}
			doc, err := readDocument(input)
			if err != nil {
				return err
			}
			m, err := message.FromObject(desc, doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", desc.FullName, err)
			}

			var data []byte
			if delimited {
				data = message.MarshalDelimited(m)
			} else {
				data = message.Marshal(m)
			}
			out, err := encodePayload(data, format)
			if err != nil {
				return err
			}
			opts.logger.Debug().Str("type", desc.FullName).Int("bytes", len(data)).Msg("encoded message")
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatRaw, "output format: raw, hex or base64")
	cmd.Flags().BoolVar(&delimited, "delimited", false, "prefix the message with its varint length")
	return cmd
}

func decodeCmd(opts *globalOptions) *cobra.Command {
	var (
		format    string
		delimited bool
		defaults  bool
		camelCase bool
	)

	cmd := &cobra.Command{
		Use:   "decode <type> [input]",
		Short: "Decode a protobuf message and print it as YAML",
		Long: `Decode reads a payload from the input file (stdin when omitted or
"-") and prints the message as YAML. With --delimited the input is a
stream of length-prefixed messages, printed as one document each.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load()
			if err != nil {
				return err
			}
			desc, err := p.MessageType(args[0])
			if err != nil {
				return err
			}

			input, err := readInput(cmd, args, 1)
			if err != nil {
				return err
			}
			data, err := decodePayload(input, format)
			if err != nil {
				return err
			}

			objOpts := opts.cfg.Output
			if changed(cmd, "defaults") {
				objOpts.Defaults = defaults
				objOpts.Arrays = defaults
				objOpts.Objects = defaults
			}
			if changed(cmd, "camel-case") {
				objOpts.CamelCase = camelCase
			}

			if !delimited {
				m, err := p.Decode(data, desc.FullName)
				if err != nil {
					return fmt.Errorf("decode %s: %w", desc.FullName, err)
				}
				return writeDocuments(cmd.OutOrStdout(), message.ToObject(m, objOpts))
			}

			var docs []map[string]interface{}
			dec := message.DecodeOptions{MaxDepth: opts.cfg.MaxDepth}
			r := wire.NewReader(data)
			for r.Remaining() > 0 {
				m, err := dec.DecodeDelimited(r, desc)
				if err != nil {
					return fmt.Errorf("decode %s #%d: %w", desc.FullName, len(docs), err)
				}
				docs = append(docs, message.ToObject(m, objOpts))
			}
			opts.logger.Debug().Str("type", desc.FullName).Int("messages", len(docs)).Msg("decoded stream")
			return writeDocuments(cmd.OutOrStdout(), docs...)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatRaw, "input format: raw, hex or base64")
	cmd.Flags().BoolVar(&delimited, "delimited", false, "read a stream of length-prefixed messages")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "print unset fields with their default values")
	cmd.Flags().BoolVar(&camelCase, "camel-case", false, "key fields by their JSON names")
	return cmd
}

func verifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <type> [input]",
		Short: "Check that a YAML or JSON document fits a message type",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load()
			if err != nil {
				return err
			}
			desc, err := p.MessageType(args[0])
			if err != nil {
				return err
			}

			input, err := readInput(cmd, args, 1)
			if err != nil {
				return err
			}
			doc, err := readDocument(input)
			if err != nil {
				return err
			}
			if err := message.Verify(desc, doc); err != nil {
				return fmt.Errorf("invalid %s: %w", desc.FullName, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func listCmd(opts *globalOptions) *cobra.Command {
	kinds := []string{"messages", "enums", "services", "extensions"}

	return &cobra.Command{
		Use:       "list [" + strings.Join(kinds, "|") + "]",
		Short:     "List the types defined by the schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load()
			if err != nil {
				return err
			}
			names := map[string][]string{
				"messages":   p.ListMessages(),
				"enums":      p.ListEnums(),
				"services":   p.ListServices(),
				"extensions": p.ListExtensions(),
			}

			if len(args) == 1 {
				for _, name := range names[args[0]] {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			doc := make(map[string]interface{}, len(names))
			for kind, list := range names {
				if len(list) > 0 {
					doc[kind] = list
				}
			}
			return writeDocuments(cmd.OutOrStdout(), doc)
		},
	}
}
