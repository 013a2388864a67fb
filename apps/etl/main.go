package main

import (
	"fmt"
	"log"
	"os"

	"github.com/staffhub/backend/core"
	logsvc "github.com/staffhub/backend/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ETL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	core.ParseEmailTemplates(logger, conf.Debug)

	cli := newCommandLine(conf, logger, os.Stdout)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("etl: %v", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
