/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Command drvstub is a reference driver process: it creates one socket
// advertising a small built-in command set (echo, ping) for manual and
// end-to-end testing of the shell against real UNIX sockets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sabouaram/drvshell/internal/config"
	"github.com/sabouaram/drvshell/internal/drvstub"
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/logging"
)

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "drvstub",
		Short: "Reference driver process implementing the echo/ping command set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	if err := config.RegisterDriverFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	cfg, err := config.LoadDriverConfig(v)
	if err != nil {
		return err
	}

	log := logging.New(os.Stderr)

	if err := os.MkdirAll(cfg.BaseDir, 0o700); err != nil {
		return err
	}

	svc, err := ioservice.New()
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.BaseDir, fmt.Sprintf("%s.%d%s", cfg.Name, cfg.Slot, cfg.SocketSuffix))
	d := drvstub.New(svc, path, drvstub.EchoCommands(), log)
	if err := d.Listen(); err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		svc.Stop(false)
	}()

	return svc.Run(ctx)
}
