package main

import (
	"context"
	"log"
	"os"

	"github.com/fells-code/seamless-auth-go/internal/buildinfo"
	"github.com/fells-code/seamless-auth-go/internal/cli"
	"github.com/fells-code/seamless-auth-go/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
