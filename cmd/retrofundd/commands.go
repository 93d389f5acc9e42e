package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/retrofund/retrofund/internal/config"
)

var configCmd = &cli.Command{
	Name:   "config",
	Usage:  "Print the resolved daemon configuration",
	Action: configAction,
}

func configAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	fmt.Println(cfg)
	return nil
}
