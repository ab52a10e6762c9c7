package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/subscription"
	"github.com/trezcool/masomo-live/services/email"
	"github.com/trezcool/masomo-live/services/logger"
	"github.com/trezcool/masomo-live/services/meeting"
	"github.com/trezcool/masomo-live/services/payment"
	"github.com/trezcool/masomo-live/storage/database"
	"github.com/trezcool/masomo-live/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog("admin", conf), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = db.PingContext(context.Background()); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}
	tx := database.NewTransactor(db)
	classRepo := sqlxrepos.NewLiveClassRepository(db)

	var meetings liveclass.Provisioner
	if conf.Zoom.AccountID == "" || conf.Zoom.ClientID == "" {
		meetings = meetingsvc.NewConsoleProvisioner(logger)
	} else {
		meetings = meetingsvc.NewZoomClient(conf.Zoom, logger)
	}

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	// start CLI
	cli := commandLine{
		conf:     conf,
		validate: validate,
		liveSvc:  liveclass.NewService(classRepo, meetings, tx, logger),
		subSvc: subscription.NewService(subscription.ServiceDeps{
			Repo:     sqlxrepos.NewSubscriptionRepository(db),
			Classes:  classRepo,
			Gateway:  paymentsvc.NewRazorpayGateway(conf.Razorpay),
			Tx:       tx,
			MailSvc:  emailsvc.NewConsoleService(conf, logger),
			Logger:   logger,
			Currency: conf.Razorpay.Currency,
		}),
		migrator: gooseMigrator(db.DB),
		in:       os.Stdin,
		inFd:     int(os.Stdin.Fd()),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
