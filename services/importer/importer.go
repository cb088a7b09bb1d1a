// Package importer is the code system import engine. One call imports one
// bounded batch of concepts and concept properties into a code system,
// atomically: the batch commits whole or fails whole.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/backends/state"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
	"github.com/rohitjsoftype/terminology-api/util"
)

// MaxImportBatch bounds the total number of entries (concepts plus
// properties) accepted in a single call. Callers chunk larger loads.
const MaxImportBatch = 100_000

type IImporter interface {
	// Import runs one batch against the code system with the given canonical
	// URL and returns the resolved resource. Any error is an *OutcomeError;
	// on error the database is left exactly as it was before the call.
	Import(ctx context.Context, req *Request) (*codesystem.CodeSystem, error)
}

// Principal identifies the caller. Imports require elevated privilege.
type Principal struct {
	ID           string
	ProjectAdmin bool
	SuperAdmin   bool
}

func (p Principal) Elevated() bool {
	return p.ProjectAdmin || p.SuperAdmin
}

// Concept is one incoming concept of the batch.
type Concept struct {
	Code    string
	Display string
}

// ImportedProperty is one incoming property value: Code names a concept in
// the target system, Property names a (possibly implicit) property
// definition, Value is the textual value - for relationships, the target
// code.
type ImportedProperty struct {
	Code     string
	Property string
	Value    string
}

type Request struct {
	System     string
	Concepts   []Concept
	Properties []ImportedProperty
	Principal  Principal
}

type Importer struct {
	opts *Options
	log  *zap.Logger
}

type Options struct {
	Database    Database
	CodeSystems codesystem.ICodeSystem
	Log         *zap.Logger

	// State enables the optional cross-instance import lock and last-import
	// bookkeeping. May be nil.
	State       state.IState
	LockEnabled bool
	LockTTL     time.Duration
}

func New(opts *Options) (*Importer, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Importer{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "importer")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Database == nil {
		return errors.New("database cannot be nil")
	}

	if opts.CodeSystems == nil {
		return errors.New("code system service cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	if opts.LockEnabled && opts.State == nil {
		return errors.New("lock requires a state backend")
	}

	if opts.LockTTL == 0 {
		opts.LockTTL = state.DefaultImportLockTTL
	}

	return nil
}

func (i *Importer) Import(ctx context.Context, req *Request) (*codesystem.CodeSystem, error) {
	txn, logger := util.MethodSetup(ctx, i.log, zap.String("method", "Import"))
	segment := txn.StartSegment("ImportService.Import")
	defer segment.End()

	if req == nil {
		return nil, invalidInput("Import request cannot be empty")
	}

	logger = logger.With(zap.String("system", req.System))

	if !req.Principal.Elevated() {
		util.Error(txn, logger, "rejecting import from non-elevated caller", nil)
		return nil, authorizationFailure()
	}

	if size := len(req.Concepts) + len(req.Properties); size > MaxImportBatch {
		return nil, invalidInput(fmt.Sprintf("Batch of %d entries exceeds limit of %d", size, MaxImportBatch))
	}

	// Acquire the code system before entering the transaction; zero or
	// multiple matches are caller error and must fail early.
	cs, err := i.opts.CodeSystems.FindByURL(ctx, req.System)
	if err != nil {
		switch {
		case errors.Is(err, codesystem.ErrNotFound):
			return nil, codeSystemNotFound(req.System)
		case errors.Is(err, codesystem.ErrAmbiguous):
			return nil, ambiguousCodeSystem(req.System)
		default:
			util.Error(txn, logger, "code system lookup failed", err)
			return nil, storageFailure(err, "Failed to resolve CodeSystem")
		}
	}

	if i.opts.LockEnabled {
		lock, err := i.obtainLock(ctx, req.System)
		if err != nil {
			util.Error(txn, logger, "failed to obtain import lock", err)
			return nil, storageFailure(err, "Failed to acquire import lock")
		}

		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release import lock", zap.Error(err))
			}
		}()
	}

	if err := i.runTransaction(ctx, cs, req); err != nil {
		util.Error(txn, logger, "import failed", err,
			zap.String("kind", string(AsOutcome(err).Kind)))
		return nil, err
	}

	i.recordLastImport(ctx, logger, req.System)

	logger.Info("Import committed",
		zap.Int("concepts", len(req.Concepts)),
		zap.Int("properties", len(req.Properties)))

	return cs, nil
}

// runTransaction holds the single transaction an import runs under: concept
// pass, then property pass, then commit. The first error rolls everything
// back.
func (i *Importer) runTransaction(ctx context.Context, cs *codesystem.CodeSystem, req *Request) error {
	tx, err := i.opts.Database.Begin(ctx)
	if err != nil {
		return storageFailure(err, "Failed to begin import transaction")
	}

	cache := newResolutionCache()

	if err := i.writeConcepts(ctx, tx, cs, req.Concepts); err != nil {
		tx.Rollback()
		return err
	}

	if err := i.writeProperties(ctx, tx, cs, req.Properties, cache); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageFailure(err, "Failed to commit import transaction")
	}

	return nil
}

func (i *Importer) obtainLock(ctx context.Context, systemURL string) (*redislock.Lock, error) {
	return i.opts.State.Obtain(ctx,
		state.ImportLockPrefix+":"+systemURL,
		i.opts.LockTTL,
		&redislock.Options{
			RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
		})
}

// recordLastImport is best-effort bookkeeping; failures are logged, never
// surfaced.
func (i *Importer) recordLastImport(ctx context.Context, logger *zap.Logger, systemURL string) {
	if i.opts.State == nil {
		return
	}

	ts := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	if err := i.opts.State.Set(ctx, systemURL, ts, state.LastImportPrefix); err != nil {
		logger.Warn("Failed to record last import time", zap.Error(err))
	}
}
