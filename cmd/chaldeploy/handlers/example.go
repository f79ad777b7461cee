package handlers

import (
	"fmt"
	"io"

	"github.com/ringzer0/chaldeploy/internal/config"
)

// Example writes a sample config.yml to w.
func Example(w io.Writer) error {
	_, err := fmt.Fprint(w, config.Example)
	return err
}
