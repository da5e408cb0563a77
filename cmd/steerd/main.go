package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/robotalks/legocar.go/pkg/env"
	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/steering"
)

type config struct {
	Car      *env.ClientConfig `yaml:"car"`
	Steering *steering.Config  `yaml:"steering"`
}

func main() {
	conf := config{Car: env.NewClientConfig(), Steering: steering.Default()}
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	conf.Car.SetupFlags(fs)
	steering.SetupFlags(fs)
	env.BridgeGoFlags(fs)
	if err := env.Load(fs, os.Args[1:], &conf); err != nil {
		log.Fatalln(err)
	}
	env.MarkGoFlagsParsed()
	defer glog.Flush()

	car := &env.Redialer{Config: conf.Car}
	defer car.Close()
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client, err := car.Client(dialCtx)
	if err == nil {
		_, err = client.Ping(dialCtx)
	}
	cancel()
	if err != nil {
		log.Fatalf("car %s/%s: %v", conf.Car.Addr, conf.Car.Network, err)
	}
	glog.Infof("Steering car at %s/%s", conf.Car.Addr, conf.Car.Network)

	loop := fx.NewLoop().Add(conf.Steering.NewController(car))
	r := fx.NewRunner().HandleSignals().Go(loop)
	err = r.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	car.Set(stopCtx, "motor/left", "0")
	car.Set(stopCtx, "motor/right", "0")
	if client, cerr := car.Client(stopCtx); cerr == nil {
		client.Disconnect(stopCtx)
	}
	if err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
