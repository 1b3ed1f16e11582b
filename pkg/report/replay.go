package report

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Replayer periodically drains the local fallback log into the primary
// store. Records land keyed by their deterministic report id, so replaying
// after a manual retry is harmless
type Replayer struct {
	store    Store
	fallback *FallbackLog
	cron     *cron.Cron
}

// NewReplayer creates a replayer over the given store and fallback log
func NewReplayer(store Store, fallback *FallbackLog) *Replayer {
	return &Replayer{
		store:    store,
		fallback: fallback,
		cron:     cron.New(),
	}
}

// Start schedules replay runs on the given cron spec (e.g. "@every 5m")
func (r *Replayer) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() {
		r.ReplayPending(context.Background())
	}); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop halts scheduled replay runs
func (r *Replayer) Stop() {
	r.cron.Stop()
}

// ReplayPending attempts to land every pending fallback record in the
// primary store. Failures are logged and left pending for the next run
func (r *Replayer) ReplayPending(ctx context.Context) (replayed int) {
	records, err := r.fallback.Pending(ctx)
	if err != nil {
		log.Printf("[REPLAY]: failed to list pending records: %v", err)
		return 0
	}

	for _, record := range records {
		rep, err := record.Decode()
		if err != nil {
			log.Printf("[REPLAY]: skipping undecodable record %s: %v", record.ReportID, err)
			continue
		}

		if _, err := r.store.Save(ctx, rep); err != nil {
			log.Printf("[REPLAY]: primary store still unreachable for %s: %v", record.ReportID, err)
			continue
		}

		if err := r.fallback.MarkReplayed(ctx, record.ReportID); err != nil {
			log.Printf("[REPLAY]: failed to mark record %s replayed: %v", record.ReportID, err)
			continue
		}

		replayed++
	}

	if replayed > 0 {
		log.Printf("[REPLAY]: replayed %d fallback record(s) into primary store", replayed)
	}

	return replayed
}
