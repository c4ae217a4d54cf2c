// Command protocol-schema writes the JSON schema of the websocket payloads.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"arena-rooms/server/internal/net/proto"
)

func main() {
	out := flag.String("out", "", "write the schema to this file instead of stdout")
	flag.Parse()

	schema, err := proto.Schema()
	if err != nil {
		log.Fatalf("build schema: %v", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("encode schema: %v", err)
	}
	data = append(data, '\n')

	if *out == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Fatalf("write schema: %v", err)
		}
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
}
