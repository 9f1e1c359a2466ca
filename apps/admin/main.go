package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/internal/platform"
	logsvc "github.com/trezcool/shule/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	p, err := platform.New(ctx, conf, logger, platform.Options{})
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	cli := newCommandLine(p, os.Stdout)
	err = cli.run(os.Args)
	if cerr := p.Close(); cerr != nil {
		logger.Error("Failed to close", cerr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(p *platform.Platform, out io.Writer) *commandLine {
	cli := &commandLine{
		users:    p.Repos.Users,
		students: p.Students,
		academic: p.Academic,
		validate: p.Validate,
		out:      out,
	}
	if p.DB != nil {
		cli.db = p.DB.DB
	}
	return cli
}

