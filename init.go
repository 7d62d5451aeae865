package main

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dzexpress/shipping/internal/config"
	"github.com/dzexpress/shipping/internal/store"
	"github.com/dzexpress/shipping/internal/telemetry"
	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/algerieposte"
	"github.com/dzexpress/shipping/pkg/courier/ecotrack"
	"github.com/dzexpress/shipping/pkg/courier/maystro"
	"github.com/dzexpress/shipping/pkg/courier/noest"
	"github.com/dzexpress/shipping/pkg/courier/yalidine"
	"github.com/dzexpress/shipping/pkg/courier/zimou"
	"github.com/dzexpress/shipping/pkg/courier/zrexpress"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// devVaultSecret keeps local development working without VAULT_SECRET.
// Production startup rejects an empty secret during config validation.
const devVaultSecret = "dev-only-insecure-vault-secret"

func initStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	logger.Warn("DATABASE_URL not set, using in-memory store")
	mem := store.NewMemory()
	seedCompanies(mem)
	return mem, func() {}, nil
}

// seedCompanies populates the in-memory store with the supported
// delivery companies. The postgres store gets the same rows from the
// migration seed data instead.
func seedCompanies(mem *store.Memory) {
	companies := []store.DeliveryCompany{
		{ID: 1, Name: "yalidine", DisplayName: "Yalidine", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 2, Name: "guepex", DisplayName: "Guepex", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 3, Name: "ecotrack", DisplayName: "Ecotrack", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 4, Name: "anderson", DisplayName: "Anderson Express", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 5, Name: "mars-express", DisplayName: "Mars Express", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 6, Name: "dolivroo", DisplayName: "Dolivroo", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 7, Name: "noest", DisplayName: "Noest Express", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 8, Name: "zr-express", DisplayName: "ZR Express", SupportsCOD: true, SupportsTracking: true, SupportsLabels: true, SupportsAPICreate: true, Active: true},
		{ID: 9, Name: "maystro", DisplayName: "Maystro Delivery", SupportsCOD: true, SupportsTracking: true, SupportsAPICreate: true, Active: true},
		{ID: 10, Name: "zimou-express", DisplayName: "Zimou Express", SupportsCOD: true, SupportsTracking: true, SupportsAPICreate: true, Active: true},
		{ID: 11, Name: "algerie-poste", DisplayName: "Algérie Poste EMS", SupportsTracking: true, Active: true},
	}
	for _, c := range companies {
		mem.SeedCompany(c)
	}
}

func initCourierRegistry(cfg *config.Config, logger *otelzap.Logger) *courier.Registry {
	registry := courier.NewRegistry()
	tracer := tracerFor(cfg)

	registry.Register(yalidine.New(yalidine.Config{
		BaseURL:        cfg.YalidineBaseURL,
		DefaultCommune: cfg.DefaultCommune,
	}, logger, tracer))
	registry.Register(yalidine.NewGuepex(yalidine.Config{
		BaseURL:        cfg.GuepexBaseURL,
		DefaultCommune: cfg.DefaultCommune,
	}, logger, tracer))

	ecotrackCfg := ecotrack.Config{BaseURL: cfg.EcotrackBaseURL}
	registry.Register(ecotrack.New(ecotrackCfg, logger, tracer))
	registry.Register(ecotrack.NewAnderson(ecotrack.Config{}, logger, tracer))
	registry.Register(ecotrack.NewMarsExpress(ecotrack.Config{}, logger, tracer))
	registry.Register(ecotrack.NewDolivroo(ecotrack.Config{}, logger, tracer))

	registry.Register(noest.New(noest.Config{BaseURL: cfg.NoestBaseURL}, logger, tracer))

	zrGen := zrexpress.GenerationCurrent
	if cfg.ZRExpressLegacy {
		zrGen = zrexpress.GenerationLegacy
	}
	registry.Register(zrexpress.New(zrexpress.Config{
		BaseURL:        cfg.ZRExpressBaseURL,
		Generation:     zrGen,
		DefaultCommune: cfg.DefaultCommune,
	}, logger, tracer))

	registry.Register(maystro.New(maystro.Config{BaseURL: cfg.MaystroBaseURL}, logger, tracer))
	registry.Register(zimou.New(zimou.Config{BaseURL: cfg.ZimouBaseURL}, logger, tracer))
	registry.Register(algerieposte.New(algerieposte.Config{}, logger, tracer))

	return registry
}

func tracerFor(cfg *config.Config) trace.Tracer {
	if !cfg.OTELEnabled {
		return nil
	}
	return otel.GetTracerProvider().Tracer(cfg.ServiceName)
}
