package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/bootstrap"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/gcsuploader"
	"github.com/dvloznov/ownspend/internal/jobs"
	jobsmem "github.com/dvloznov/ownspend/internal/jobs/inmemory"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/rules"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	// exportPageSize is how many events export reads per store call.
	exportPageSize = 500

	jobPollInterval = 50 * time.Millisecond
)

func newIngestCommand(a *app) *cobra.Command {
	var sender, text, sourceType, pkg, timestamp string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one SMS or notification text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			var ts time.Time
			if timestamp != "" {
				ts, err = time.Parse(time.RFC3339, timestamp)
				if err != nil {
					return fmt.Errorf("invalid --timestamp: %w", err)
				}
			}

			res, err := a.svc.Ingest(cmd.Context(), pipeline.IngestRequest{
				OwnerID:    owner,
				SourceType: domain.SourceType(strings.ToUpper(sourceType)),
				Sender:     sender,
				Package:    pkg,
				RawText:    text,
				Timestamp:  ts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Event:       %s\n", res.EventID)
			if !res.Parsed {
				fmt.Fprintf(out, "Not parsed:  %s\n", res.Error)
				return nil
			}
			fmt.Fprintf(out, "Transaction: %s (created: %t)\n", res.TransactionID, res.Created)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "raw message text (required)")
	_ = cmd.MarkFlagRequired("text")
	cmd.Flags().StringVar(&sender, "sender", "", "SMS sender id")
	cmd.Flags().StringVar(&sourceType, "source-type", "SMS", "SMS or NOTIFICATION")
	cmd.Flags().StringVar(&pkg, "package", "", "notifying app package")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "receive time, RFC 3339 (defaults to now)")

	return cmd
}

func newReparseCommand(a *app) *cobra.Command {
	var status, from, to string

	cmd := &cobra.Command{
		Use:   "reparse",
		Short: "Re-run extraction over stored events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			filter := store.EventFilter{
				OwnerID: owner,
				Status:  domain.EventStatus(strings.ToUpper(status)),
			}
			if filter.From, err = parseOptionalTime(from); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if filter.To, err = parseOptionalTime(to); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			res, err := a.svc.Reparse(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reparsed %d events: %d succeeded, %d failed\n", res.Total, res.Succeeded, res.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(domain.EventStatusFailed), "event status to reparse (empty for all)")
	cmd.Flags().StringVar(&from, "from", "", "earliest receive time, RFC 3339")
	cmd.Flags().StringVar(&to, "to", "", "latest receive time, RFC 3339")

	return cmd
}

func newReapplyCommand(a *app) *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "reapply",
		Short: "Re-run categorization rules over transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			res, err := a.svc.ReapplyRules(cmd.Context(), owner, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d transactions, %d changed\n", res.Processed, res.Changed)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "transaction ids (defaults to all)")

	return cmd
}

func newSeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default categories and rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			res, err := rules.SeedDefaults(cmd.Context(), a.st, owner, a.now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories and %d rules\n", res.Categories, res.Rules)
			return nil
		},
	}
}

func newAccountsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			accounts, err := a.st.ListAccounts(cmd.Context(), owner)
			if err != nil {
				return err
			}
			renderAccounts(cmd.OutOrStdout(), accounts)
			return nil
		},
	}
}

func newTransactionsCommand(a *app) *cobra.Command {
	var direction string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			txs, err := a.st.ListTransactions(cmd.Context(), store.TransactionFilter{
				OwnerID:   owner,
				Direction: domain.Direction(strings.ToUpper(direction)),
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				return err
			}
			return renderTransactions(cmd.Context(), cmd.OutOrStdout(), a.st, txs)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", "DEBIT or CREDIT")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func newEventsCommand(a *app) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			events, err := a.st.ListEvents(cmd.Context(), store.EventFilter{
				OwnerID: owner,
				Status:  domain.EventStatus(strings.ToUpper(status)),
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			renderEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "PENDING, PARSED or FAILED")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}

func newBackfillCommand(a *app) *cobra.Command {
	var uri string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest a JSONL event dump from Cloud Storage through the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storage, err := a.gcs(ctx)
			if err != nil {
				return err
			}
			data, err := storage.Fetch(ctx, uri)
			if err != nil {
				return err
			}
			records, err := gcsuploader.DecodeEventDump(data)
			if err != nil {
				return err
			}

			jobStore := jobsmem.NewStore()
			queue := bootstrap.NewQueue(a.cfg, jobStore)
			if err := queue.Start(ctx, a.svc.HandleJob); err != nil {
				return err
			}
			defer queue.Stop(context.Background())

			batchID := uuid.New().String()
			jobIDs := make([]string, 0, len(records))
			for _, rec := range records {
				owner := rec.OwnerID
				if owner == "" {
					owner = a.ownerID
				}
				job := &jobs.IngestEventJob{
					BatchID:    batchID,
					OwnerID:    owner,
					DeviceID:   rec.DeviceID,
					SourceType: rec.SourceType,
					Sender:     rec.Sender,
					Package:    rec.Package,
					RawText:    rec.RawText,
					Timestamp:  rec.Timestamp,
				}
				if err := queue.PublishIngestEvent(ctx, job); err != nil {
					return fmt.Errorf("enqueue record %d: %w", len(jobIDs)+1, err)
				}
				jobIDs = append(jobIDs, job.JobID)
			}

			done, err := waitForJobs(ctx, jobStore, jobIDs, jobPollInterval)
			if err != nil {
				return err
			}

			var parsed, failed int
			for _, job := range done {
				if job.Status == jobs.JobStatusCompleted && job.Parsed {
					parsed++
					continue
				}
				if job.Error != "" {
					a.log.Warn().Str("job_id", job.JobID).Str("error", job.Error).Msg("Backfill record failed")
				}
				failed++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backfilled %d records from %s: %d parsed, %d failed\n",
				len(records), gcsuploader.ExtractFilenameFromGCSURI(uri), parsed, failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&uri, "gcs-uri", "", "gs:// URI of the dump (required)")
	_ = cmd.MarkFlagRequired("gcs-uri")

	return cmd
}

// waitForJobs polls until every job is completed or failed.
func waitForJobs(ctx context.Context, jobStore jobs.JobStore, ids []string, every time.Duration) ([]*jobs.IngestEventJob, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		done := make([]*jobs.IngestEventJob, 0, len(ids))
		for _, id := range ids {
			job, err := jobStore.GetJob(ctx, id)
			if err != nil {
				return nil, err
			}
			if job.Status != jobs.JobStatusCompleted && job.Status != jobs.JobStatusFailed {
				break
			}
			done = append(done, job)
		}
		if len(done) == len(ids) {
			return done, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newExportCommand(a *app) *cobra.Command {
	var uri, status string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the owner's events to Cloud Storage as JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner, err := a.requireOwner()
			if err != nil {
				return err
			}
			if uri == "" {
				uri = exportURI(a.cfg.GCS.ArchivePrefix, owner, a.now())
			}
			if uri == "" {
				return fmt.Errorf("--uri is required when gcs.archivePrefix is not set")
			}

			var events []*domain.InboundEvent
			for offset := 0; ; offset += exportPageSize {
				page, err := a.st.ListEvents(ctx, store.EventFilter{
					OwnerID: owner,
					Status:  domain.EventStatus(strings.ToUpper(status)),
					Limit:   exportPageSize,
					Offset:  offset,
				})
				if err != nil {
					return err
				}
				events = append(events, page...)
				if len(page) < exportPageSize {
					break
				}
			}

			data, err := gcsuploader.EncodeEventDump(events)
			if err != nil {
				return err
			}
			storage, err := a.gcs(ctx)
			if err != nil {
				return err
			}
			if err := storage.Upload(ctx, uri, bytes.NewReader(data)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(events), uri)
			return nil
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "gs:// destination (defaults under gcs.archivePrefix)")
	cmd.Flags().StringVar(&status, "status", "", "only events with this status")

	return cmd
}

// exportURI names a dump under prefix, or returns "" without a prefix.
func exportURI(prefix, owner string, now time.Time) string {
	if prefix == "" {
		return ""
	}
	return fmt.Sprintf("%s/events-%s-%s.jsonl", strings.TrimSuffix(prefix, "/"), owner, now.UTC().Format("20060102T150405Z"))
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
