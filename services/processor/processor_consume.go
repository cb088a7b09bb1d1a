package processor

import (
	"context"
	"runtime/debug"

	"github.com/newrelic/go-agent/v3/newrelic"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/fhir"
	"github.com/rohitjsoftype/terminology-api/util"
	"github.com/rohitjsoftype/terminology-api/validate"
)

// ConsumeFunc is a consumer function that will be executed by the "rabbit"
// library whenever Consume() reads a new message from RabbitMQ.
func (p *Processor) ConsumeFunc(msg amqp.Delivery) error {
	logger := p.log.With(
		zap.String("method", "ConsumeFunc"),
		zap.String("routingKey", msg.RoutingKey),
	)

	txn := p.options.NewRelic.StartTransaction("ProcessorService.ConsumeFunc")
	defer txn.End()

	// ConsumeFunc runs in goroutine
	defer func() {
		if r := recover(); r != nil {
			util.Error(txn, logger, "recovered from panic", nil,
				zap.Any("panic", r),
				zap.Stack("stack"),
				zap.Any("panicTrace", string(debug.Stack())),
			)
		}
	}()

	// Ack up front: a malformed or failed job is logged and dropped rather
	// than requeued; producers retry by re-publishing.
	if err := msg.Ack(false); err != nil {
		util.Error(txn, logger, "unable to acknowledge message", err)
		return nil
	}

	// Try to decode message and dispatch it accordingly
	req, err := fhir.ParseImportParameters(msg.Body)
	if err != nil {
		util.Error(txn, logger, "unable to parse import job", err)
		return nil
	}

	if err := validate.ImportRequest(req); err != nil {
		util.Error(txn, logger, "unable to validate import job", err)
		return nil
	}

	logger = logger.With(zap.String("system", req.System))

	// Create context with logger that we can pass around
	ctx := context.WithValue(context.Background(), util.LoggerContextKey, logger)

	// Now add NewRelic txn to context
	ctx = newrelic.NewContext(ctx, txn)

	txn.AddAttribute("system", req.System)
	txn.AddAttribute("concepts", len(req.Concepts))
	txn.AddAttribute("properties", len(req.Properties))

	if err := p.handleImportJob(ctx, req); err != nil {
		util.Error(txn, logger, "error processing import job", err)
		return nil
	}

	return nil
}
