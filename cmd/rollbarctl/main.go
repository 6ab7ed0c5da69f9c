package main

import (
	"log"

	"github.com/austindbirch/rollbar_relay/cmd/rollbarctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
