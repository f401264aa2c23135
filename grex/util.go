package main

import (
	"os"
	"strconv"

	"github.com/grexlab/grex/errs"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// writeTo creates fn and writes it with write.
func writeTo(fn string, write func(f *os.File) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errs.IOf("writing %s: %v", fn, err)
	}
	return nil
}
