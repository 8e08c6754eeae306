package main

import (
	"fmt"

	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/danmuck/clangipc/internal/refactoring"
	"github.com/spf13/cobra"
)

func pingCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Send Alive and wait for the echo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, done, err := o.session(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			rtt, err := s.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alive in %s\n", rtt)
			return nil
		},
	}
}

func annotateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <file>",
		Short: "Send a file and print its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := o.container(args[0])
			if err != nil {
				return err
			}
			s, ctx, done, err := o.session(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			changed, err := s.Annotate(ctx, fc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range changed.Diagnostics {
				fmt.Fprintf(out, "%s:%d:%d: %s: %s [%s]\n",
					d.Location.FilePath, d.Location.Line, d.Location.Column,
					severityName(d.Severity), d.Text, d.Category)
			}
			if len(changed.Diagnostics) == 0 {
				fmt.Fprintf(out, "%s: no diagnostics\n", fc.FilePath)
			}
			return nil
		},
	}
}

func renameCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file> <line> <column>",
		Short: "List the occurrences of the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
			fc, err := o.container(args[0])
			if err != nil {
				return err
			}
			s, ctx, done, err := o.session(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			cur := refactoring.Cursor{
				FilePath: fc.FilePath,
				Line:     line - 1,
				Column:   col - 1,
				Content:  fc.UnsavedContent,
				Revision: fc.Revision,
			}
			r, err := s.Rename(ctx, cur, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if r.SymbolName == "" {
				fmt.Fprintln(out, "no symbol at position")
				return nil
			}
			fmt.Fprintf(out, "%s: %d occurrence(s)\n", r.SymbolName, len(r.Locations))
			for _, l := range r.Locations {
				fmt.Fprintf(out, "  %s:%d:%d\n", l.FilePath, l.Line, l.Column)
			}
			return nil
		},
	}
}

func completeCmd(o *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "complete <file> <line> <column>",
		Short: "Print completions at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
			fc, err := o.container(args[0])
			if err != nil {
				return err
			}
			s, ctx, done, err := o.session(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			// Completion runs against the stored unit, so publish it first.
			if _, err := s.Annotate(ctx, fc); err != nil {
				return err
			}
			got, err := s.Complete(ctx, fc.FilePath, line, col, fc.ProjectPartID)
			if err != nil {
				return err
			}
			if limit > 0 && len(got) > limit {
				got = got[:limit]
			}
			out := cmd.OutOrStdout()
			for _, c := range got {
				fmt.Fprintf(out, "%-24s %-8s %d\n", c.Text, kindName(c.Kind), c.Priority)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum completions printed, 0 for all")
	return cmd
}

func severityName(s message.Severity) string {
	switch s {
	case message.SeverityNote:
		return "note"
	case message.SeverityWarning:
		return "warning"
	case message.SeverityError:
		return "error"
	case message.SeverityFatal:
		return "fatal"
	default:
		return "ignored"
	}
}

func kindName(k message.CompletionKind) string {
	switch k {
	case message.CompletionFunction:
		return "function"
	case message.CompletionVariable:
		return "variable"
	case message.CompletionClass:
		return "class"
	case message.CompletionKeyword:
		return "keyword"
	default:
		return "other"
	}
}
