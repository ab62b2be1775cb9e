// Package app assembles the inventory core from a storage backend. The
// server, the seed tool and end-to-end tests share this wiring so that
// the in-memory and PostgreSQL deployments differ only in their backend.
package app

import (
	"context"
	"fmt"

	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/validation"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/movement_repo"
	"stockledger/internal/infrastructure/storage/postgres/report_repo"
	"stockledger/internal/infrastructure/storage/postgres/rule_repo"
)

// ViewCache is a listing cache that also reacts to ledger changes.
type ViewCache interface {
	inventory.ViewCache
	ledger.ChangeListener
}

// Backend is everything the core needs from storage.
type Backend struct {
	TxManager tx.Manager
	Ledger    ledger.Repository
	Movements movements.Repository
	Reports   reports.Repository
	Catalog   catalog.Lookup

	// Optional
	Rules     validation.RuleStore
	Publisher movements.Publisher
}

// Options tune the assembled service.
type Options struct {
	LoadProvider validation.LoadProvider
	ViewCache    ViewCache

	// RuleOverrides are applied after the persisted rules are loaded.
	RuleOverrides map[string]validation.RuleOverride
	RuleMode      validation.OverrideMode
}

// Inventory is the assembled core.
type Inventory struct {
	Service   *inventory.Service
	Ledger    *ledger.Service
	Recorder  *movements.Service
	Validator *validation.Validator
	Reports   *reports.Service
}

// Build wires the services, loads persisted rules and applies overrides.
func Build(ctx context.Context, b Backend, opts Options) (*Inventory, error) {
	ledgerSvc := ledger.NewService(b.Ledger, b.TxManager, b.Catalog)

	var recorderOpts []movements.Option
	if b.Publisher != nil {
		recorderOpts = append(recorderOpts, movements.WithPublisher(b.Publisher))
	}
	recorder := movements.NewService(b.Movements, b.Catalog, b.TxManager, recorderOpts...)

	var validatorOpts []validation.Option
	if opts.LoadProvider != nil {
		validatorOpts = append(validatorOpts, validation.WithLoadProvider(opts.LoadProvider))
	}
	if b.Rules != nil {
		validatorOpts = append(validatorOpts, validation.WithRuleStore(b.Rules))
	}
	validator := validation.NewValidator(ledgerSvc, recorder, b.Catalog, validatorOpts...)
	if err := validator.Reload(ctx); err != nil {
		return nil, err
	}
	if len(opts.RuleOverrides) > 0 {
		mode := opts.RuleMode
		if mode == "" {
			mode = validation.OverrideMerge
		}
		if _, err := validator.ApplyOverrides(ctx, opts.RuleOverrides, mode); err != nil {
			return nil, fmt.Errorf("apply configured rule overrides: %w", err)
		}
	}

	reportSvc := reports.NewService(b.Reports, recorder, ledgerSvc, b.Catalog)

	var serviceOpts []inventory.Option
	if opts.ViewCache != nil {
		ledgerSvc.AddListener(opts.ViewCache)
		serviceOpts = append(serviceOpts, inventory.WithViewCache(opts.ViewCache))
	}

	return &Inventory{
		Service:   inventory.NewService(ledgerSvc, recorder, validator, reportSvc, b.Catalog, b.TxManager, serviceOpts...),
		Ledger:    ledgerSvc,
		Recorder:  recorder,
		Validator: validator,
		Reports:   reportSvc,
	}, nil
}

// MemoryBackend backs the core with one in-process store.
func MemoryBackend(store *memory.Store) Backend {
	movementRepo := memory.NewMovementRepo(store)
	return Backend{
		TxManager: memory.NewTxManager(store),
		Ledger:    memory.NewLedgerRepo(store),
		Movements: movementRepo,
		Reports:   movementRepo,
		Catalog:   memory.NewCatalogRepo(store),
		Rules:     memory.NewRuleStore(store),
		Publisher: memory.NewOutbox(store),
	}
}

// PostgresBackend backs the core with PostgreSQL repositories sharing txm.
func PostgresBackend(txm *postgres.TxManager, codec *postgres.PayloadCodec) Backend {
	return Backend{
		TxManager: txm,
		Ledger:    ledger_repo.NewLedgerRepo(txm),
		Movements: movement_repo.NewMovementRepo(txm, codec),
		Reports:   report_repo.NewReportRepo(txm),
		Catalog:   catalog_repo.NewCatalogRepo(txm),
		Rules:     rule_repo.NewRuleRepo(txm),
		Publisher: postgres.NewOutboxPublisher(txm),
	}
}
