package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/services/importer"
	"github.com/rohitjsoftype/terminology-api/services/publisher"
	"github.com/rohitjsoftype/terminology-api/util"
)

// handleImportJob drives one queued import batch through the import engine.
// Queue producers are internal services, so jobs run under a system
// principal with elevated privilege.
func (p *Processor) handleImportJob(ctx context.Context, req *importer.Request) error {
	txn, logger := util.MethodSetup(ctx, p.log, zap.String("method", "handleImportJob"))
	segment := txn.StartSegment("ProcessorService.handleImportJob")
	defer segment.End()

	logger.Info("Handling import job",
		zap.Int("concepts", len(req.Concepts)),
		zap.Int("properties", len(req.Properties)))

	req.Principal = importer.Principal{
		ID:         "system/queue",
		SuperAdmin: true,
	}

	cs, err := p.options.ImportService.Import(ctx, req)
	if err != nil {
		return util.Error(txn, logger, "import job failed", err)
	}

	if p.options.PublisherService != nil {
		event := &publisher.ImportCompletedEvent{
			System:     cs.URL,
			Concepts:   len(req.Concepts),
			Properties: len(req.Properties),
		}

		if err := p.options.PublisherService.PublishImportCompletedEvent(ctx, event); err != nil {
			// The import itself committed; a lost event is log-worthy only.
			logger.Warn("Failed to publish import completed event", zap.Error(err))
		}
	}

	return nil
}
