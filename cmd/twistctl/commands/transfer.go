package commands

import (
	"bytes"
	"context"
	"fmt"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/library"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/storage"
)

// exportTo renders a library file with write and stores it at location,
// a local path or an s3:// URL.
func exportTo(ctx context.Context, c *cli.Context, location string, write func(*bytes.Buffer) error) error {
	fs, path, err := storage.Open(location, c.S3)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := storage.WriteFile(ctx, fs, path, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	return nil
}

// importFrom reads the library file at location and hands it to read.
func importFrom(ctx context.Context, c *cli.Context, location string, read func(*bytes.Reader) (library.Report, error)) (library.Report, error) {
	fs, path, err := storage.Open(location, c.S3)
	if err != nil {
		return library.Report{}, err
	}
	data, err := storage.ReadFile(ctx, fs, path)
	if err != nil {
		return library.Report{}, fmt.Errorf("read %s: %w", location, err)
	}
	return read(bytes.NewReader(data))
}

// printReport writes an import report and warns about skipped entries.
func printReport(rep library.Report) error {
	for _, re := range rep.Skipped {
		cli.PrintWarning("skipped %s %q: %s", re.Kind, re.Name, re.Reason)
	}
	return outputResult(rep)
}
