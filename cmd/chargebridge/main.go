package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oddbit-project/chargebridge"
	"github.com/oddbit-project/chargebridge/alert"
	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/config/provider"
	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/oddbit-project/chargebridge/envelope/store"
	"github.com/oddbit-project/chargebridge/flood"
	"github.com/oddbit-project/chargebridge/httpserver"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/metrics"
	"github.com/oddbit-project/chargebridge/ratelimiter"
	"github.com/oddbit-project/chargebridge/relay"
	"github.com/oddbit-project/chargebridge/sequence"
	"github.com/oddbit-project/chargebridge/utils"
	"github.com/oddbit-project/chargebridge/utils/fs"
	"github.com/oddbit-project/chargebridge/watchdog"
	"github.com/oddbit-project/chargebridge/ws"
)

const (
	VERSION = "0.9.0"

	// proxy and devices must share this secret; the literal fallback matches
	// the charge point firmware default
	DefaultSecretEnvVar = "SECRET_KEY"
	defaultSharedSecret = "SuperSecretKey123"

	shutdownTimeout = 5 * time.Second
)

// CliArgs Command-line options
type CliArgs struct {
	ConfigFile  *string
	ShowVersion *bool
}

// Application proxy application container
type Application struct {
	container *chargebridge.Container
	args      *CliArgs
	env       *provider.EnvProvider
	logger    *log.Logger

	nonces    store.NonceStore
	engine    *relay.Engine
	wsServer  *ws.Server
	opsServer *httpserver.Server
	watchdog  *watchdog.Watchdog
	limiter   *ratelimiter.RateLimiter
	sink      audit.Sink
	notifier  alert.Notifier
}

// command-line args
var cliArgs = &CliArgs{
	ConfigFile:  flag.String("c", "", "Config file (optional, defaults apply without one)"),
	ShowVersion: flag.Bool("version", false, "Show version"),
}

// NewApplication proxy application factory; without a config file every
// section runs on its defaults
func NewApplication(args *CliArgs, logger *log.Logger) (*Application, error) {
	src := interface{}(json.RawMessage("{}"))
	if *args.ConfigFile != "" {
		if !fs.FileExists(*args.ConfigFile) {
			return nil, fmt.Errorf("config file not found: %s", *args.ConfigFile)
		}
		src = *args.ConfigFile
	}
	cfg, err := provider.NewJsonProvider(src)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New("chargebridge")
	}
	return &Application{
		container: chargebridge.NewContainer(cfg),
		args:      args,
		env:       provider.NewEnvProvider("CB", true),
		logger:    logger,
	}, nil
}

// loadSection fills dest from the JSON section when present, then applies
// environment overrides read from envPrefix_FIELD variables
func (a *Application) loadSection(key, envPrefix string, dest interface{}) {
	if a.container.Config.KeyExists(key) {
		a.container.AbortFatal(a.container.Config.GetKey(key, dest))
	}
	a.container.AbortFatal(a.env.GetKey(envPrefix, dest))
}

func (a *Application) Build() {
	// assemble internal dependencies of application
	// if some error occurs, generate fatal error & abort execution

	logCfg := log.NewDefaultConfig()
	a.loadSection("log", "CB_LOG", logCfg)
	a.container.AbortFatal(log.Configure(logCfg))

	a.logger.Info("Building chargebridge proxy...", log.KV{"version": VERSION})

	// shared signing secret; plaintext wins over env var, env var over file
	secretCfg := &secure.SecretConfig{SecretEnvVar: DefaultSecretEnvVar}
	a.loadSection("secret", "CB_SECRET", secretCfg)
	secretValue, err := secretCfg.Fetch()
	a.container.AbortFatal(err)
	if secretValue == "" {
		secretValue = defaultSharedSecret
	}
	encryptionKey, err := secure.GenerateKey()
	a.container.AbortFatal(err)
	credential, err := secure.NewCredential([]byte(secretValue), encryptionKey, false)
	a.container.AbortFatal(err)

	// envelope codec and replay cache
	envelopeCfg := envelope.NewConfig()
	a.loadSection("envelope", "CB_ENVELOPE", envelopeCfg)
	a.container.AbortFatal(envelopeCfg.Validate())

	storeCfg := store.NewConfig()
	a.loadSection("nonceStore", "CB_NONCE_STORE", storeCfg)
	a.container.AbortFatal(storeCfg.Validate())

	codecOpts := []envelope.CodecOption{
		envelope.WithAllowedSkew(envelopeCfg.AllowedSkew()),
	}
	if storeCfg.Scope == store.ScopeGlobal {
		a.nonces, err = store.NewNonceStore(storeCfg)
		a.container.AbortFatal(err)
		codecOpts = append(codecOpts, envelope.WithNonceStore(a.nonces))
	}
	codec := envelope.NewCodec(credential, codecOpts...)

	// detection settings
	floodCfg := flood.NewConfig()
	a.loadSection("flood", "CB_FLOOD", floodCfg)

	orderCfg := sequence.NewConfig()
	a.loadSection("sequence", "CB_SEQUENCE", orderCfg)

	relayCfg := relay.NewConfig()
	a.loadSection("relay", "CB_RELAY", relayCfg)

	// counters and periodic reporting
	m := metrics.New()
	reporter := metrics.NewReporter(m, a.logger, 0)

	// audit trail
	auditCfg := audit.NewConfig()
	if a.container.Config.KeyExists("audit") {
		a.container.AbortFatal(a.container.Config.GetKey("audit", auditCfg))
	}
	a.sink, err = audit.NewSink(auditCfg)
	a.container.AbortFatal(err)

	// alert channel; violations are published without blocking the relay
	a.notifier = alert.NopNotifier{}
	if a.container.Config.KeyExists("alerts") {
		mqttCfg := alert.NewMqttConfig()
		a.loadSection("alerts", "CB_ALERTS", mqttCfg)
		publisher, err := alert.NewMqttPublisher(mqttCfg)
		a.container.AbortFatal(err)
		a.container.AbortFatal(publisher.Connect())
		a.notifier, err = alert.NewAsyncNotifier(a.container.GetContext(), publisher,
			alert.WithLogger(log.New("alert")))
		a.container.AbortFatal(err)
	}

	// upstream dialer and relay engine
	upstreamCfg := ws.NewUpstreamConfig()
	a.loadSection("upstream", "CB_UPSTREAM", upstreamCfg)
	dialer, err := ws.NewDialer(upstreamCfg)
	a.container.AbortFatal(err)

	a.engine, err = relay.NewEngine(relayCfg, codec, dialer, log.New("relay"),
		relay.WithMetrics(m),
		relay.WithReporter(reporter),
		relay.WithAuditSink(a.sink),
		relay.WithNotifier(a.notifier),
		relay.WithFloodConfig(floodCfg),
		relay.WithOrderConfig(orderCfg),
		relay.WithNonceScope(storeCfg),
	)
	a.container.AbortFatal(err)

	// device listener behind the accept limiter
	limiterCfg := ratelimiter.NewConfig()
	a.loadSection("connLimiter", "CB_CONN_LIMITER", limiterCfg)
	a.limiter, err = ratelimiter.NewRateLimiter(limiterCfg)
	a.container.AbortFatal(err)

	listenerCfg := ws.NewListenerConfig()
	a.loadSection("listener", "CB_LISTENER", listenerCfg)
	a.wsServer, err = ws.NewServer(listenerCfg, a.engine.Handle, log.New("ws"),
		ws.WithAcceptGate(a.limiter.AllowAddr))
	a.container.AbortFatal(err)

	// suppression watchdog over the session registry
	watchdogCfg := watchdog.NewConfig()
	a.loadSection("watchdog", "CB_WATCHDOG", watchdogCfg)
	a.watchdog, err = watchdog.New(watchdogCfg, a.engine.Registry().Snapshot, a.engine.ExpireIdleSession)
	a.container.AbortFatal(err)

	// ops endpoint: health, status snapshot, prometheus
	opsCfg := httpserver.NewServerConfig()
	a.loadSection("ops", "CB_OPS", opsCfg)
	a.opsServer, err = httpserver.NewServer(opsCfg, log.New("ops"))
	a.container.AbortFatal(err)
	httpserver.RegisterOps(a.opsServer, a.engine.Metrics(), a.engine.Registry().Count)
	httpserver.RegisterMetrics(a.opsServer, httpserver.MetricsEndpoint, a.engine.Metrics())
}

func (a *Application) Run() {
	// destructors run in reverse registration order: listeners close first,
	// then sessions, then the backends they report to
	if a.nonces != nil {
		chargebridge.RegisterDestructor(func() error {
			return a.nonces.Close()
		})
	}
	chargebridge.RegisterDestructor(func() error {
		return a.sink.Close()
	})
	chargebridge.RegisterDestructor(func() error {
		return a.notifier.Close()
	})
	chargebridge.RegisterDestructor(func() error {
		a.limiter.Shutdown()
		return nil
	})
	chargebridge.RegisterDestructor(func() error {
		a.engine.Shutdown()
		return nil
	})
	chargebridge.RegisterDestructor(func() error {
		a.watchdog.Shutdown()
		return nil
	})
	chargebridge.RegisterDestructor(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.opsServer.Shutdown(ctx)
	})
	chargebridge.RegisterDestructor(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.wsServer.Shutdown(ctx)
	})

	a.container.Run(func(app interface{}) error {
		a.limiter.Start()
		a.watchdog.Start()
		go func() {
			a.logger.Info("ops endpoint listening", log.KV{
				"addr": a.opsServer.Config.Addr(),
			})
			a.container.AbortFatal(a.opsServer.Start())
		}()
		go func() {
			a.container.AbortFatal(a.wsServer.Start())
		}()
		return nil
	})
}

func main() {
	// config logger
	utils.PanicOnError(log.Configure(log.NewDefaultConfig()))

	logger := log.New("chargebridge")

	flag.Parse()

	if *cliArgs.ShowVersion {
		fmt.Printf("Version: %s\n", VERSION)
		os.Exit(0)
	}

	app, err := NewApplication(cliArgs, logger)
	if err != nil {
		logger.Error(err, "Initialization failed")
		os.Exit(-1)
	}

	// build application
	app.Build()
	// execute application
	app.Run()
}
