package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/moisture-node/cmd"
)

func main() {
	app := &cli.App{
		Name:    "moisture-node",
		Usage:   "battery powered soil moisture sensor node",
		Version: cmd.Version,
		Action:  cmd.NodeCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nvram",
				EnvVars: []string{"NVRAM_PATH"},
				Usage:   "path of the persisted settings region",
			},
			&cli.StringFlag{
				Name:    "serial-device",
				EnvVars: []string{"SERIAL_DEV"},
				Usage:   "serial device for the operator console, stdin/stdout when empty",
			},
			&cli.IntFlag{
				Name:    "serial-baud",
				EnvVars: []string{"SERIAL_BAUD"},
				Usage:   "baud rate for the operator console",
			},
			&cli.StringFlag{
				Name:    "adc-path",
				EnvVars: []string{"ADC_PATH"},
				Usage:   "sysfs path of the raw moisture reading",
			},
			&cli.StringFlag{
				Name:    "led-chip",
				EnvVars: []string{"LED_CHIP"},
				Usage:   "gpio chip of the activity led, disabled when empty",
			},
			&cli.IntFlag{
				Name:    "led-line",
				EnvVars: []string{"LED_LINE"},
				Usage:   "gpio line offset of the activity led",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Usage:   "minimum log level",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
