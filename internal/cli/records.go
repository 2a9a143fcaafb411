package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/service"
)

type exportOptions struct {
	format   string
	filter   string
	search   string
	fields   []string
	output   string
	presence bool
}

// NewExportCommand creates the export command, which renders visible records without the API.
func NewExportCommand(rootOpts *RootOptions, connect Connector) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:          "export",
		Short:        "Export visible records as CSV, JSON or PDF",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, opts, connect, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.format, "type", "csv", "export format (csv|json|pdf)")
	cmd.Flags().StringVar(&opts.filter, "filter", "all", "filter (all|hasCard|online)")
	cmd.Flags().StringVar(&opts.search, "search", "", "search term")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", []string{"personal", "card", "status", "timestamps"}, "field groups to include")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.presence, "presence", false, "resolve presence from redis")

	return cmd
}

func runExport(rootOpts *RootOptions, opts *exportOptions, connect Connector, cmd *cobra.Command) error {
	format := models.ExportFormat(strings.ToLower(opts.format))
	switch format {
	case models.ExportFormatCSV, models.ExportFormatJSON, models.ExportFormatPDF:
	default:
		return fmt.Errorf("unsupported export format %q", opts.format)
	}
	fields, err := parseFieldGroups(opts.fields)
	if err != nil {
		return err
	}
	filter := models.ParseFilterType(opts.filter)
	needPresence := opts.presence || filter == models.FilterOnline

	backends, release, err := connect(cmd.Context(), Needs{Postgres: true, Redis: needPresence})
	if err != nil {
		return err
	}
	defer release()

	records, err := visibleRecords(cmd.Context(), backends.Records)
	if err != nil {
		return err
	}
	lookup := func(string) models.PresenceStatus { return models.PresenceUnknown }
	if needPresence {
		lookup = presenceLookup(cmd.Context(), backends.Presence)
	}

	rows := service.FilterRecords(records, lookup, filter, strings.TrimSpace(opts.search))
	service.SortViews(rows, models.SortByDate, models.SortDesc)
	verbosef(rootOpts, cmd, "%d of %d visible records matched", len(rows), len(records))

	title := fmt.Sprintf("Notifications export %s", time.Now().UTC().Format("2006-01-02 15:04"))
	payload, err := service.NewExportService(service.ExportServiceParams{}).Render(format, service.BuildExportDataset(rows, fields), title)
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	if opts.output == "" {
		_, err = cmd.OutOrStdout().Write(payload)
		return err
	}
	if err := os.WriteFile(opts.output, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(rows), opts.output)
	return nil
}

type hideAllOptions struct {
	yes bool
}

// NewHideAllCommand creates the hide-all command.
func NewHideAllCommand(rootOpts *RootOptions, connect Connector) *cobra.Command {
	opts := &hideAllOptions{}

	cmd := &cobra.Command{
		Use:          "hide-all",
		Short:        "Hide every visible record in one transaction",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.yes {
				return fmt.Errorf("refusing to hide records without --yes")
			}
			backends, release, err := connect(cmd.Context(), Needs{Postgres: true})
			if err != nil {
				return err
			}
			defer release()

			records, err := visibleRecords(cmd.Context(), backends.Records)
			if err != nil {
				return err
			}
			ids := make([]string, len(records))
			for i, rec := range records {
				ids[i] = rec.ID
			}
			if len(ids) > 0 {
				if err := backends.Records.HideMany(cmd.Context(), ids); err != nil {
					return fmt.Errorf("hide records: %w", err)
				}
			}
			return emit(rootOpts, cmd.OutOrStdout(), map[string]int{"hidden": len(ids)}, func(w io.Writer) {
				fmt.Fprintf(w, "hidden %d records\n", len(ids))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.yes, "yes", false, "confirm hiding every visible record")
	return cmd
}

func visibleRecords(ctx context.Context, source recordStore) ([]models.Record, error) {
	entries, _, err := source.ListSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]models.Record, 0, len(entries))
	for _, entry := range entries {
		if entry.Hidden {
			continue
		}
		out = append(out, entry.Record)
	}
	return out, nil
}

func presenceLookup(ctx context.Context, store presenceStore) service.PresenceLookup {
	cache := make(map[string]models.PresenceStatus)
	return func(id string) models.PresenceStatus {
		if status, ok := cache[id]; ok {
			return status
		}
		status := models.PresenceOffline
		if raw, err := store.Get(ctx, id); err == nil {
			status = models.ResolvePresence(raw)
		}
		cache[id] = status
		return status
	}
}

func parseFieldGroups(groups []string) (models.ExportFields, error) {
	var fields models.ExportFields
	for _, g := range groups {
		switch strings.ToLower(strings.TrimSpace(g)) {
		case "personal", "personalinfo":
			fields.PersonalInfo = true
		case "card", "cardinfo":
			fields.CardInfo = true
		case "status":
			fields.Status = true
		case "timestamps", "time":
			fields.Timestamps = true
		case "":
		default:
			return fields, fmt.Errorf("unknown field group %q", g)
		}
	}
	return fields, nil
}
