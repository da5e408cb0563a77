package main

import (
	"log"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/robotalks/legocar.go/pkg/env"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

//go-build: CGO_ENABLED=0

func main() {
	conf := env.NewServerConfig()
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	conf.SetupFlags(fs)
	env.BridgeGoFlags(fs)
	if err := env.Load(fs, os.Args[1:], conf); err != nil {
		log.Fatalln(err)
	}
	env.MarkGoFlagsParsed()
	defer glog.Flush()

	e, err := conf.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	r := fx.NewRunner().HandleSignals()
	if err = e.Start(r); err != nil {
		r.Stop()
	}
	if werr := r.Wait(); err == nil {
		err = werr
	}
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
