package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"coderun/internal/protocol"
)

func newTemplateCmd() *cobra.Command {
	names := make([]string, 0, len(protocol.Languages))
	for _, lang := range protocol.Languages {
		names = append(names, string(lang))
	}
	return &cobra.Command{
		Use:       "template <language>",
		Short:     "Print the starter program for a language",
		Long:      "Print the starter program for a language. Supported: " + strings.Join(names, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := protocol.ParseLanguage(args[0])
			if err != nil {
				return err
			}
			tmpl, ok := protocol.Template(lang)
			if !ok {
				return fmt.Errorf("no template for %s", lang)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), tmpl)
			return err
		},
	}
}
