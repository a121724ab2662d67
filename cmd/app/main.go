package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"longform-transcriber/internal/bootstrap"
)

func main() {
	// .env is optional; OPENAI_API_KEY may come from the shell instead.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
