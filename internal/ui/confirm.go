package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNotConfirmed = errors.New("confirmation did not match")

// ConfirmOptions gates a destructive printer action such as cancelling a
// running job. Action is the word the operator must type or pass via
// --confirm.
type ConfirmOptions struct {
	Action  string
	Force   bool
	Confirm string
	NoInput bool
	UseTTY  bool
	Out     io.Writer
	In      io.Reader
}

func RequireConfirmation(opts ConfirmOptions) error {
	if opts.Force {
		return nil
	}
	if opts.Confirm != "" {
		if opts.Confirm == opts.Action {
			return nil
		}
		return fmt.Errorf("--confirm must equal %q", opts.Action)
	}
	if opts.NoInput || !opts.UseTTY || opts.In == nil {
		return fmt.Errorf("confirmation required: pass --force or --confirm=%s", opts.Action)
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	if _, err := fmt.Fprintf(out, "Type %q to confirm: ", opts.Action); err != nil {
		return err
	}
	line, err := bufio.NewReader(opts.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != opts.Action {
		return ErrNotConfirmed
	}
	return nil
}
