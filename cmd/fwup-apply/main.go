// Command fwup-apply applies a task from a signed firmware archive to an
// output device or image file.
package main

import (
	"crypto/ed25519"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/wrtcoder/go-fwup-apply/apply"
)

type parameters struct {
	Archive       string `short:"i" long:"archive" description:"Path to the firmware archive (.fw/.zip)" required:"true"`
	Output        string `short:"o" long:"output" description:"Path to the output device or image file" required:"true"`
	Task          string `short:"t" long:"task" description:"Task-title prefix to select" required:"true"`
	PublicKeyPath string `short:"k" long:"public-key" description:"Path to a raw 32-byte Ed25519 public key used to verify the archive's signature"`
	Quiet         bool   `short:"q" long:"quiet" description:"Suppress progress output"`
}

func main() {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err, ok := errRaw.(error)
			if ok == false {
				log.Panicf("main() panic with a non-error: [%v]", errRaw)
			}

			log.PrintError(err)
			os.Exit(1)
		}
	}()

	var p parameters
	if _, err := flags.NewParser(&p, flags.Default).Parse(); err != nil {
		os.Exit(1)
	}

	var trustedPublicKey ed25519.PublicKey
	if p.PublicKeyPath != "" {
		raw, err := os.ReadFile(p.PublicKeyPath)
		log.PanicIf(err)

		if len(raw) != ed25519.PublicKeySize {
			log.Panicf("public key at %s must be exactly %d bytes, got %d", p.PublicKeyPath, ed25519.PublicKeySize, len(raw))
		}

		trustedPublicKey = ed25519.PublicKey(raw)
	}

	output, err := os.OpenFile(p.Output, os.O_RDWR|os.O_CREATE, 0644)
	log.PanicIf(err)

	var progress apply.ProgressReporter = apply.NullProgressReporter{}
	if p.Quiet == false {
		progress = apply.NewHumaneProgressReporter(os.Stdout)
	}

	err = apply.Apply(p.Archive, p.Task, output, trustedPublicKey, progress)
	log.PanicIf(err)
}
