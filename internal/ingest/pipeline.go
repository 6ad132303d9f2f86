package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/internal/engagement"
	"github.com/budget-france/chorus-backend/pkg/config"
	dbpkg "github.com/budget-france/chorus-backend/pkg/db"
	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
	"github.com/budget-france/chorus-backend/pkg/metrics"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type engagementStore interface {
	FindByIdentityTx(tx *gorm.DB, nEj string, nPosteEj int, source enums.DataSource) (*models.Engagement, error)
	CreateTx(tx *gorm.DB, row *models.Engagement) error
	UpdateTx(tx *gorm.DB, row *models.Engagement) error
	ReplaceAmountsTx(tx *gorm.DB, engagementID uuid.UUID, entries []engagement.AmountEntry) error
}

type paymentStore interface {
	ExistsByImportKeyTx(tx *gorm.DB, taskID string, lineNo int) (bool, error)
	CreateTx(tx *gorm.DB, row *models.Payment) error
	FindEngagementIDTx(tx *gorm.DB, nEj string, nPosteEj int, source enums.DataSource) (*uuid.UUID, error)
}

type referenceEnsurer interface {
	Ensure(ctx context.Context, tx *gorm.DB, kind enums.ReferenceKind, code string) error
}

type siretEnsurer interface {
	Ensure(ctx context.Context, tx *gorm.DB, code string) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PipelineParams wires the pipeline's collaborators.
type PipelineParams struct {
	DB          dbClient
	Engagements engagementStore
	Payments    paymentStore
	References  referenceEnsurer
	Sirets      siretEnsurer
	Events      eventEmitter
	Metrics     *metrics.IngestMetrics
	Logger      *logger.Logger
	Config      config.IngestConfig
}

// Pipeline applies one chunk of lines as a single transaction.
type Pipeline struct {
	db          dbClient
	engagements engagementStore
	payments    paymentStore
	references  referenceEnsurer
	sirets      siretEnsurer
	events      eventEmitter
	metrics     *metrics.IngestMetrics
	logg        *logger.Logger
	cfg         config.IngestConfig

	// beforeCommit runs immediately before the chunk transaction commits.
	// Test instrumentation only; nil in production.
	beforeCommit func(tx *gorm.DB) error
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Engagements == nil {
		return nil, errors.New("engagement store is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment store is required")
	}
	if params.References == nil {
		return nil, errors.New("reference ensurer is required")
	}
	if params.Sirets == nil {
		return nil, errors.New("siret ensurer is required")
	}
	if params.Events == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Pipeline{
		db:          params.DB,
		engagements: params.Engagements,
		payments:    params.Payments,
		references:  params.References,
		sirets:      params.Sirets,
		events:      params.Events,
		metrics:     params.Metrics,
		logg:        params.Logger,
		cfg:         params.Config,
	}, nil
}

// ProcessChunk applies all of a chunk's lines in one transaction. All-or-
// nothing: any error past the per-line SKIP conditions rolls back every
// change of the attempt.
func (p *Pipeline) ProcessChunk(ctx context.Context, chunk payloads.ChunkDispatched) error {
	entityType, err := enums.ParseFinancialEntityType(chunk.EntityType)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfig, "unknown entity type", err)
	}
	source, err := enums.ParseDataSource(chunk.DataSource)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "unknown data source", err)
	}

	ctx = p.logg.WithImportTask(ctx, chunk.Submission.ImportTaskID)
	ctx = p.logg.WithRegion(ctx, chunk.Submission.SourceRegion)
	ctx = p.logg.WithChunk(ctx, chunk.StartIndex, len(chunk.Lines))

	started := time.Now()
	defer func() {
		p.metrics.ObserveChunkDuration(string(entityType), time.Since(started))
	}()

	switch entityType {
	case enums.FinancialEntityEngagement:
		return p.processAEChunk(ctx, chunk, source)
	case enums.FinancialEntityPayment:
		return p.processCPChunk(ctx, chunk, source)
	case enums.FinancialEntityGrant:
		return apperrors.New(apperrors.CodeConfig, "grant lines are ingested by the grants importer, not this pipeline")
	default:
		return apperrors.New(apperrors.CodeConfig, fmt.Sprintf("unhandled entity type %s", entityType))
	}
}

func (p *Pipeline) processAEChunk(ctx context.Context, chunk payloads.ChunkDispatched, source enums.DataSource) error {
	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		committed := 0
		for i, record := range chunk.Lines {
			lineNo := chunk.StartIndex + i
			line, err := BuildAELine(record, chunk.Submission, source, lineNo)
			if err != nil {
				return p.lineError(ctx, lineNo, err)
			}

			existing, err := p.engagements.FindByIdentityTx(tx, line.NEj, line.NPosteEj, line.DataSource)
			if err != nil {
				return p.lineError(ctx, lineNo, err)
			}
			history := engagement.HistoryOf(existing)

			incoming := engagement.Incoming{
				SourceRegion:     line.SourceRegion,
				Montant:          line.Montant,
				Annee:            line.Annee,
				DateModification: line.DateModification,
			}

			switch engagement.Decide(existing, history, incoming) {
			case engagement.DecisionSkip:
				p.metrics.IncLine(string(enums.FinancialEntityEngagement), "skipped")
				continue

			case engagement.DecisionCreate:
				if err := p.ensureLineReferences(ctx, tx, aeReferences(line)); err != nil {
					return p.lineError(ctx, lineNo, err)
				}
				if err := p.ensureSiret(ctx, tx, line.Siret); err != nil {
					return p.lineError(ctx, lineNo, err)
				}
				row := newEngagementRow(line)
				if err := p.engagements.CreateTx(tx, row); err != nil {
					return p.lineError(ctx, lineNo, classifyWriteError(err))
				}
				if line.Montant != nil {
					merged := engagement.Merge(nil, *line.Montant, line.Annee)
					if err := p.engagements.ReplaceAmountsTx(tx, row.ID, merged); err != nil {
						return p.lineError(ctx, lineNo, err)
					}
				}
				p.metrics.IncLine(string(enums.FinancialEntityEngagement), "created")
				committed++

			case engagement.DecisionUpdate:
				if err := p.ensureLineReferences(ctx, tx, aeReferences(line)); err != nil {
					return p.lineError(ctx, lineNo, err)
				}
				if err := p.ensureSiret(ctx, tx, line.Siret); err != nil {
					return p.lineError(ctx, lineNo, err)
				}

				affecting := engagement.IsAmountAffecting(existing, history, incoming)
				applyLineFields(existing, line, affecting)
				if err := p.engagements.UpdateTx(tx, existing); err != nil {
					return p.lineError(ctx, lineNo, classifyWriteError(err))
				}
				if affecting {
					merged := engagement.Merge(history, *line.Montant, line.Annee)
					if err := p.engagements.ReplaceAmountsTx(tx, existing.ID, merged); err != nil {
						return p.lineError(ctx, lineNo, err)
					}
				}
				p.metrics.IncLine(string(enums.FinancialEntityEngagement), "updated")
				committed++
			}
		}

		// Once the engagements of this chunk are committed, their buffered
		// payment chunks are released into the same pipeline. The outbox
		// rows commit atomically with the chunk.
		for _, child := range chunk.Children {
			childChunk := payloads.ChunkDispatched{
				EntityType: child.EntityType,
				DataSource: chunk.DataSource,
				Submission: chunk.Submission,
				StartIndex: child.StartIndex,
				Lines:      child.Lines,
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventChunkDispatchCP,
				AggregateType: enums.AggregateImportChunk,
				AggregateID:   chunkAggregateID(childChunk),
				Data:          childChunk,
				Version:       1,
			}
			if err := p.events.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		if p.beforeCommit != nil {
			if err := p.beforeCommit(tx); err != nil {
				return err
			}
		}

		p.logg.Info(p.logg.WithField(ctx, "lines_committed", committed), "engagement chunk committed")
		return nil
	})
}

func (p *Pipeline) processCPChunk(ctx context.Context, chunk payloads.ChunkDispatched, source enums.DataSource) error {
	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		type importKey struct {
			taskID string
			lineNo int
		}
		seen := make(map[importKey]struct{}, len(chunk.Lines))
		created := 0

		for i, record := range chunk.Lines {
			lineNo := chunk.StartIndex + i
			line, err := BuildCPLine(record, chunk.Submission, source, lineNo)
			if err != nil {
				return p.lineError(ctx, lineNo, err)
			}

			key := importKey{taskID: line.FileImportTaskID, lineNo: line.FileImportLineNo}
			if _, dup := seen[key]; dup {
				p.metrics.IncLine(string(enums.FinancialEntityPayment), "skipped")
				continue
			}
			seen[key] = struct{}{}

			exists, err := p.payments.ExistsByImportKeyTx(tx, line.FileImportTaskID, line.FileImportLineNo)
			if err != nil {
				return p.lineError(ctx, lineNo, err)
			}
			if exists {
				p.metrics.IncLine(string(enums.FinancialEntityPayment), "skipped")
				continue
			}

			if err := p.ensureLineReferences(ctx, tx, cpReferences(line)); err != nil {
				return p.lineError(ctx, lineNo, err)
			}
			if err := p.ensureSiret(ctx, tx, line.Siret); err != nil {
				return p.lineError(ctx, lineNo, err)
			}

			row := newPaymentRow(line)
			if line.NEj != nil && line.NPosteEj != nil {
				engagementID, err := p.payments.FindEngagementIDTx(tx, *line.NEj, *line.NPosteEj, line.DataSource)
				if err != nil {
					return p.lineError(ctx, lineNo, err)
				}
				row.EngagementID = engagementID
			}

			if err := p.payments.CreateTx(tx, row); err != nil {
				return p.lineError(ctx, lineNo, classifyWriteError(err))
			}
			p.metrics.IncLine(string(enums.FinancialEntityPayment), "created")
			created++
		}

		if p.beforeCommit != nil {
			if err := p.beforeCommit(tx); err != nil {
				return err
			}
		}

		p.logg.Info(p.logg.WithField(ctx, "lines_committed", created), "payment chunk committed")
		return nil
	})
}

type referencePair struct {
	kind enums.ReferenceKind
	code *string
}

func aeReferences(line *AELine) []referencePair {
	return []referencePair{
		{enums.ReferenceProgram, line.Programme},
		{enums.ReferenceFunctionalDomain, line.DomaineFonctionnel},
		{enums.ReferenceCostCenter, line.CentreCouts},
		{enums.ReferenceProgrammingPlan, line.ReferentielProgrammation},
		{enums.ReferenceSupplier, line.FournisseurTitulaire},
		{enums.ReferenceCommodityGroup, line.GroupeMarchandise},
		{enums.ReferenceInterministerialLocation, line.LocalisationInterministerielle},
	}
}

func cpReferences(line *CPLine) []referencePair {
	return []referencePair{
		{enums.ReferenceProgram, line.Programme},
		{enums.ReferenceFunctionalDomain, line.DomaineFonctionnel},
		{enums.ReferenceCostCenter, line.CentreCouts},
		{enums.ReferenceProgrammingPlan, line.ReferentielProgrammation},
		{enums.ReferenceSupplier, line.FournisseurPaye},
	}
}

func (p *Pipeline) ensureLineReferences(ctx context.Context, tx *gorm.DB, pairs []referencePair) error {
	for _, pair := range pairs {
		if pair.code == nil {
			continue
		}
		if err := p.references.Ensure(ctx, tx, pair.kind, *pair.code); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) ensureSiret(ctx context.Context, tx *gorm.DB, code *string) error {
	if code == nil {
		return nil
	}
	return p.sirets.Ensure(ctx, tx, *code)
}

func (p *Pipeline) lineError(ctx context.Context, lineNo int, err error) error {
	p.logg.Error(p.logg.WithField(ctx, "line_no", lineNo), "line processing failed", err)
	return err
}

func newEngagementRow(line *AELine) *models.Engagement {
	return &models.Engagement{
		NEj:                            line.NEj,
		NPosteEj:                       line.NPosteEj,
		DataSource:                     line.DataSource,
		SourceRegion:                   line.SourceRegion,
		Annee:                          line.Annee,
		Programme:                      line.Programme,
		DomaineFonctionnel:             line.DomaineFonctionnel,
		CentreCouts:                    line.CentreCouts,
		ReferentielProgrammation:       line.ReferentielProgrammation,
		FournisseurTitulaire:           line.FournisseurTitulaire,
		Siret:                          line.Siret,
		LocalisationInterministerielle: line.LocalisationInterministerielle,
		GroupeMarchandise:              line.GroupeMarchandise,
		ContratEtatRegion:              line.ContratEtatRegion,
		CompteBudgetaire:               line.CompteBudgetaire,
		DateModification:               line.DateModification,
		FileImportTaskID:               line.FileImportTaskID,
		FileImportLineNo:               line.FileImportLineNo,
	}
}

// applyLineFields copies the incoming line onto the loaded record. When the
// update is a negative correction, the headline fiscal year stays put; only
// the amount-history entry carries the correction's year.
func applyLineFields(existing *models.Engagement, line *AELine, amountAffecting bool) {
	negative := amountAffecting && line.Montant != nil && !line.Montant.IsPositive()
	if !negative {
		existing.Annee = line.Annee
	}
	existing.SourceRegion = line.SourceRegion
	existing.Programme = line.Programme
	existing.DomaineFonctionnel = line.DomaineFonctionnel
	existing.CentreCouts = line.CentreCouts
	existing.ReferentielProgrammation = line.ReferentielProgrammation
	existing.FournisseurTitulaire = line.FournisseurTitulaire
	existing.Siret = line.Siret
	existing.LocalisationInterministerielle = line.LocalisationInterministerielle
	existing.GroupeMarchandise = line.GroupeMarchandise
	existing.ContratEtatRegion = line.ContratEtatRegion
	existing.CompteBudgetaire = line.CompteBudgetaire
	existing.DateModification = line.DateModification
	existing.FileImportTaskID = line.FileImportTaskID
	existing.FileImportLineNo = line.FileImportLineNo
}

func newPaymentRow(line *CPLine) *models.Payment {
	return &models.Payment{
		NDp:                      line.NDp,
		NEj:                      line.NEj,
		NPosteEj:                 line.NPosteEj,
		DataSource:               line.DataSource,
		SourceRegion:             line.SourceRegion,
		Annee:                    line.Annee,
		Programme:                line.Programme,
		DomaineFonctionnel:       line.DomaineFonctionnel,
		CentreCouts:              line.CentreCouts,
		ReferentielProgrammation: line.ReferentielProgrammation,
		FournisseurPaye:          line.FournisseurPaye,
		Siret:                    line.Siret,
		Montant:                  line.Montant,
		DateBaseDp:               line.DateBaseDp,
		DateDerniereOperationDp:  line.DateDerniereOperationDp,
		FileImportTaskID:         line.FileImportTaskID,
		FileImportLineNo:         line.FileImportLineNo,
	}
}

// classifyWriteError upgrades raw driver errors into the retryable conflict
// class where appropriate.
func classifyWriteError(err error) error {
	if dbpkg.IsRetryableWrite(err) {
		return apperrors.Wrap(apperrors.CodeConflict, "database write contention", err)
	}
	return err
}

func chunkAggregateID(chunk payloads.ChunkDispatched) string {
	return fmt.Sprintf("%s:%s:%d", chunk.Submission.ImportTaskID, chunk.EntityType, chunk.StartIndex)
}
