package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rocketcrew/elonbot"
	"github.com/rocketcrew/elonbot/analyzer"
	"github.com/rocketcrew/elonbot/checkin"
	"github.com/rocketcrew/elonbot/config"
	"github.com/rocketcrew/elonbot/crypt"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/interactions"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/reply"
	"github.com/rocketcrew/elonbot/roster"
	"github.com/rocketcrew/elonbot/slog"
	"github.com/rocketcrew/elonbot/store"
	"github.com/rocketcrew/elonbot/store/datastoredb"
	"github.com/rocketcrew/elonbot/store/inmemorydb"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	appName = "elonbot"

	goalsStoreName        = "goals"
	interactionsStoreName = "interactions"
)

// app holds everything a command needs. Components are opened on demand so that commands like
// encrypt don't touch storage or slack
type app struct {
	v       *viper.Viper
	zap     *zap.Logger
	log     slog.SLogger
	cipher  crypt.Cipher
	loc     *time.Location
	roster  roster.Roster
	meter   metric.Meter
	closers []io.Closer

	goals        *goals.Store
	interactions *interactions.Log
	completer    oracle.Completer
}

// newApp loads the configuration, sets up logging and decrypts the configured secrets
func newApp(opts *rootOptions) (a *app, err error) {
	v, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.debug {
		v.Set(config.DebugKey, true)
	}

	a = &app{v: v, meter: otel.Meter(appName)}

	a.zap, err = newZapLogger(v.GetBool(config.DebugKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}
	a.log = slog.NewZap(a.zap)

	if a.cipher, err = config.GetCipher(v); err != nil {
		return nil, err
	}

	for _, key := range []string{config.TokenKey, config.OracleAPIKeyKey} {
		secret, err := config.GetSecret(v, key, a.cipher)
		if err != nil {
			return nil, err
		}
		v.Set(key, secret)
	}

	if a.loc, err = config.GetTimeLocation(v); err != nil {
		return nil, err
	}

	if a.roster, err = roster.Load(v); err != nil {
		return nil, err
	}

	return a, nil
}

func newZapLogger(debug bool) (logger *zap.Logger, err error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return zc.Build()
}

// stdLogger returns a standard library logger writing to zap, for the slack client
func (a *app) stdLogger() *log.Logger {
	return zap.NewStdLog(a.zap)
}

// serveMetrics exposes the otel metrics in the prometheus format on config.MetricsAddressKey. It
// does nothing when no address is configured
func (a *app) serveMetrics() (err error) {
	addr := a.v.GetString(config.MetricsAddressKey)
	if addr == "" {
		return nil
	}

	registry := prom.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return errors.Wrap(err, "failed to create prometheus exporter")
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	a.meter = provider.Meter(appName)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		a.log.Printf("Serving metrics on [%s]", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Printf("Metrics server stopped: %v", err)
		}
	}()

	a.closers = append(a.closers, elonbot.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		server.Shutdown(ctx)
		return provider.Shutdown(ctx)
	}))

	return nil
}

// openStores opens the goal store and the interaction log on the configured backend
func (a *app) openStores() (err error) {
	goalStorer, interactionStorer, err := a.openStorers()
	if err != nil {
		return err
	}

	a.goals, err = goals.New(goals.NewStorerPersister(goalStorer, a.cipher), goals.OptionLocation(a.loc), goals.OptionLogger(a.log))
	if err != nil {
		return err
	}

	// Registered after the storers so it is closed before them
	a.closers = append(a.closers, elonbot.CloserFunc(a.goals.Flush))
	a.interactions = interactions.New(interactionStorer, a.cipher)

	return nil
}

func (a *app) openStorers() (goalStorer store.StringStorer, interactionStorer store.StringStorer, err error) {
	switch backend := a.v.GetString(config.StorageBackendKey); backend {
	case config.LevelDBBackend:
		path := a.v.GetString(config.StoragePathKey)

		goalsDB, err := store.NewLevelDB(goalsStoreName, path)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, goalsDB)

		interactionsDB, err := store.NewLevelDB(interactionsStoreName, path)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, interactionsDB)

		return goalsDB, interactionsDB, nil

	case config.DatastoreBackend:
		if err := config.RequireKeys(a.v, config.DatastoreProjectIDKey); err != nil {
			return nil, nil, err
		}

		projectID := a.v.GetString(config.DatastoreProjectIDKey)
		opts := make([]option.ClientOption, 0)
		if credentials := a.v.GetString(config.DatastoreCredentialsFileKey); credentials != "" {
			opts = append(opts, option.WithCredentialsFile(credentials))
		}

		goalsDS, err := datastoredb.NewWithTelemetry(goalsStoreName, a.meter, projectID, opts...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open goals datastore")
		}
		a.closers = append(a.closers, goalsDS)

		// Goals are read as a whole on load and rewritten on every change so they are served from memory
		cachedGoals, err := inmemorydb.New(goalsDS)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to load goals datastore")
		}

		interactionsDS, err := datastoredb.NewWithTelemetry(interactionsStoreName, a.meter, projectID, opts...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open interactions datastore")
		}
		a.closers = append(a.closers, interactionsDS)

		return cachedGoals, interactionsDS, nil

	default:
		return nil, nil, errors.Errorf("unknown storage backend [%s]", backend)
	}
}

// openCompleter creates the configured oracle client. It leaves the completer nil when the
// oracle is disabled so that every component uses its deterministic strategy
func (a *app) openCompleter(ctx context.Context) (err error) {
	a.completer, err = newCompleter(ctx, a.v, a.meter)
	return err
}

func newCompleter(ctx context.Context, v *viper.Viper, meter metric.Meter) (c oracle.Completer, err error) {
	timeout := v.GetDuration(config.OracleTimeoutKey)

	switch provider := v.GetString(config.OracleProviderKey); provider {
	case config.NoOracle, "":
		return nil, nil

	case config.OpenAIOracle:
		openAI, err := oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:  v.GetString(config.OracleAPIKeyKey),
			BaseURL: v.GetString(config.OracleBaseURLKey),
			Model:   v.GetString(config.OracleModelKey),
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}

		return oracle.NewCompleterWithTelemetry(openAI, provider, meter), nil

	case config.GeminiOracle:
		gemini, err := oracle.NewGemini(ctx, v.GetString(config.OracleAPIKeyKey), v.GetString(config.OracleModelKey), timeout)
		if err != nil {
			return nil, err
		}

		return oracle.NewCompleterWithTelemetry(gemini, provider, meter), nil

	default:
		return nil, errors.Errorf("unknown oracle provider [%s]", provider)
	}
}

func (a *app) botOptions() []elonbot.Option {
	return []elonbot.Option{
		elonbot.OptionLog(a.stdLogger()),
		elonbot.OptionLogger(a.log),
		elonbot.OptionMeter(a.meter),
		elonbot.OptionRoster(a.roster),
	}
}

// newBotBuilder returns the bot builder. The bot is also the dispatcher of check-ins and follow-ups
func (a *app) newBotBuilder() *elonbot.Builder {
	return elonbot.NewBot(appName, a.v, a.botOptions()...)
}

// newBot returns a bot that isn't connected to the real time api. It is only used to send messages
func (a *app) newBot() (b *elonbot.Bot, err error) {
	if err = config.RequireKeys(a.v, config.TokenKey); err != nil {
		return nil, err
	}

	return elonbot.New(appName, a.v, a.botOptions()...)
}

// newOrchestrator assembles the reply pipeline with the oracle strategies when an oracle is
// configured and the heuristic and template ones otherwise
func (a *app) newOrchestrator(dispatcher pipeline.Dispatcher, names pipeline.UserNamer) *pipeline.Orchestrator {
	var an analyzer.Analyzer = analyzer.NewHeuristic()
	var generator reply.Generator = reply.NewTemplate(reply.DefaultChooser())

	if a.completer != nil {
		an = analyzer.NewOracle(a.completer, a.log)
		generator = reply.NewOracle(a.completer, a.v.GetInt(config.ReplyMaxTokensKey), a.log)
	}

	options := []pipeline.Option{pipeline.OptionLogger(a.log), pipeline.OptionDispatcher(dispatcher)}
	if names != nil {
		options = append(options, pipeline.OptionUserNamer(names))
	}

	return pipeline.New(an, a.goals, generator, a.interactions, options...)
}

func (a *app) newBroadcaster(dispatcher pipeline.Dispatcher) *checkin.Broadcaster {
	composer := checkin.NewComposer(a.completer, reply.DefaultChooser(), a.log)

	return checkin.NewBroadcaster(composer, a.roster, a.goals, dispatcher, a.v.GetDuration(config.CheckinPauseKey), a.log)
}

func (a *app) retentionPolicies() []elonbot.RetentionPolicy {
	return []elonbot.RetentionPolicy{
		{Name: interactionsStoreName, MaxAge: a.v.GetDuration(config.RetentionInteractionMaxAgeKey), Prune: a.interactions.Prune},
		{Name: goalsStoreName, MaxAge: a.v.GetDuration(config.RetentionInactiveGoalMaxAgeKey), Prune: a.goals.PruneInactive},
	}
}

// Close closes everything the app opened in reverse order and syncs the logger
func (a *app) Close() (err error) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i].Close(); cerr != nil {
			a.log.Printf("Error closing: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}
	a.closers = nil

	a.zap.Sync()

	return err
}
