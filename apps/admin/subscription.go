package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/masomo-live/apps/api/echo"
	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/services/metrics"
)

func (cli *commandLine) expire() error {
	n, err := cli.subSvc.ExpireLapsed(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	metrics.SubscriptionsExpired.Add(float64(n))
	fmt.Fprintf(cli.out, "%d subscription(s) expired\n", n)
	return nil
}

func (cli *commandLine) token(actor core.Actor) error {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(actor, cli.conf), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
