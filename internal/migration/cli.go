package migration

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// Run executes one migrate subcommand and writes a human-readable result.
func Run(ctx context.Context, m *Migrator, command string, out io.Writer) error {
	switch command {
	case "up":
		if err := m.Up(ctx); err != nil {
			return err
		}
	case "down":
		if err := m.Down(ctx); err != nil {
			return err
		}
	case "version":
	case "status":
		return printStatus(ctx, m, out)
	default:
		return fmt.Errorf("unknown migrate command %q (expected up, down, version, status)", command)
	}

	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(out, "No migrations applied.")
		return nil
	}
	fmt.Fprintf(out, "Current version: %d", version)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)
	return nil
}

func printStatus(ctx context.Context, m *Migrator, out io.Writer) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		status := "Pending"
		if s.Applied {
			status = "Applied"
		}
		if s.Dirty {
			status = "Dirty"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	return w.Flush()
}
