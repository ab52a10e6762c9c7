package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // /debug/pprof on the debug server

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-live/apps/api/echo"
	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/subscription"
	"github.com/trezcool/masomo-live/services/email"
	"github.com/trezcool/masomo-live/services/logger"
	"github.com/trezcool/masomo-live/services/meeting"
	"github.com/trezcool/masomo-live/services/metrics"
	"github.com/trezcool/masomo-live/services/payment"
	"github.com/trezcool/masomo-live/storage/database"
	"github.com/trezcool/masomo-live/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog("api", conf), conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(logsvc.NewZerolog("db", conf), conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	tx := database.NewTransactor(db)
	classRepo := sqlxrepos.NewLiveClassRepository(db)
	subRepo := sqlxrepos.NewSubscriptionRepository(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var meetings liveclass.Provisioner
	if conf.Zoom.AccountID == "" || conf.Zoom.ClientID == "" {
		logger.Warn("zoom credentials missing: meeting rooms are simulated")
		meetings = meetingsvc.NewConsoleProvisioner(logger)
	} else {
		meetings = meetingsvc.NewZoomClient(conf.Zoom, logger)
	}

	liveSvc := liveclass.NewService(classRepo, meetings, tx, logger)
	subSvc := subscription.NewService(subscription.ServiceDeps{
		Repo:     subRepo,
		Classes:  classRepo,
		Gateway:  paymentsvc.NewRazorpayGateway(conf.Razorpay),
		Tx:       tx,
		MailSvc:  mailSvc,
		Logger:   logger,
		Currency: conf.Razorpay.Currency,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	logger.Debug(fmt.Sprintf("config: %v", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service & Expiry Sweeper

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		LiveClassSvc:    liveSvc,
		SubscriptionSvc: subSvc,
		Validate:        validate,
		Translator:      translator,
	})

	ctx, stopSweeper := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		server.Start()
		return nil
	})
	g.Go(func() error {
		sweepExpired(ctx, subSvc, conf.Subscription.ExpirySweepInterval, logger)
		return nil
	})

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopSweeper()

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}

	_ = g.Wait()
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
