package main

import (
	"context"
	"log"

	"github.com/serenity-app/serenity/internal/app"
	"github.com/serenity-app/serenity/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	a.Run(ctx)

}
