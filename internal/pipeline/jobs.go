package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/jobs"
)

// HandleJob is a jobs.JobHandler that ingests one queued event. Events that
// fail extraction complete normally; only store faults are returned so the
// queue retries them. The event id is recorded on the job as soon as the event
// is stored, and a retry resumes that event instead of storing another.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	ingest, ok := job.(*jobs.IngestEventJob)
	if !ok {
		return fmt.Errorf("HandleJob: unsupported job type %s", job.GetType())
	}

	var (
		res *IngestResult
		err error
	)
	if ingest.EventID != "" {
		res, err = s.resume(ctx, ingest.OwnerID, ingest.EventID)
	} else {
		var event *domain.InboundEvent
		event, err = s.createEvent(ctx, IngestRequest{
			OwnerID:    ingest.OwnerID,
			DeviceID:   ingest.DeviceID,
			SourceType: domain.SourceType(ingest.SourceType),
			Sender:     ingest.Sender,
			Package:    ingest.Package,
			RawText:    ingest.RawText,
			Timestamp:  ingest.Timestamp,
		})
		if err == nil {
			ingest.EventID = event.EventID
			res, err = s.process(ctx, event)
		}
	}
	if err != nil {
		return fmt.Errorf("HandleJob: job %s: %w", ingest.JobID, err)
	}

	ingest.TransactionID = res.TransactionID
	ingest.Parsed = res.Parsed
	return nil
}
