package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/op/go-logging"
)

var (
	plainFormat = logging.MustStringFormatter(`%{message}`)
	colorFormat = logging.MustStringFormatter(`%{color}%{message}%{color:reset}`)
)

// formatter returns a colored formatter when f is a terminal.
func formatter(f *os.File) logging.Formatter {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return colorFormat
	}
	return plainFormat
}
