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

// Command drvshell is the interactive driver control-plane shell: it
// watches a directory of driver sockets, maintains a registry of connected
// drivers, and reads list/help/cmd lines from stdin to drive them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sabouaram/drvshell/internal/config"
	"github.com/sabouaram/drvshell/internal/frontend"
	"github.com/sabouaram/drvshell/internal/ioservice"
	"github.com/sabouaram/drvshell/internal/logging"
	"github.com/sabouaram/drvshell/internal/registry"
	"github.com/sabouaram/drvshell/internal/watch"
)

// selfDeleteWatcher wraps a Registry so the loss of the watched directory
// both stops the I/O service (the registry's own OnSelfDeleted behavior)
// and signals main to print the distinct shutdown notice and exit.
type selfDeleteWatcher struct {
	reg  *registry.Registry
	done chan struct{}
}

func (h *selfDeleteWatcher) OnCreated(name string) { h.reg.OnCreated(name) }
func (h *selfDeleteWatcher) OnDeleted(name string) { h.reg.OnDeleted(name) }
func (h *selfDeleteWatcher) OnSelfDeleted() {
	h.reg.OnSelfDeleted()
	close(h.done)
}

func main() {
	v := viper.New()

	var configFile string
	cmd := &cobra.Command{
		Use:   "drvshell",
		Short: "Interactive shell driving local UNIX-socket drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, configFile)
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")

	if err := config.RegisterShellFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(v *viper.Viper, configFile string) error {
	cfg, err := config.LoadShellConfig(v, configFile)
	if err != nil {
		return err
	}

	log := logging.New(os.Stderr)
	log.SetLevel(config.ParseLevel(cfg.LogLevel))
	log.SetFormat(cfg.LogFormat)

	svc, err := ioservice.New()
	if err != nil {
		return err
	}

	reg := registry.New(svc, cfg.BaseDir, cfg.SocketSuffix, log)

	w, err := watch.New(cfg.BaseDir, log)
	if err != nil {
		return err
	}

	selfDone := make(chan struct{})
	handler := &selfDeleteWatcher{reg: reg, done: selfDone}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The I/O service's goroutine must already be draining its pending-ops
	// channel before Bootstrap's synchronous OnCreated calls reach
	// Service.Invoke, or they would block forever waiting for a goroutine
	// that hasn't started yet.
	go func() { _ = svc.Run(ctx) }()

	if err := w.Bootstrap(handler, reg.Matches); err != nil {
		return err
	}
	go w.Run(handler)

	sh := frontend.New(reg, os.Stdout, cfg.Prompt)
	shellDone := make(chan error, 1)
	go func() { shellDone <- sh.Run(os.Stdin) }()

	select {
	case <-selfDone:
		fmt.Fprintln(os.Stdout, "workspace removed")
		return nil
	case err := <-shellDone:
		_ = w.Close()
		svc.Stop(false)
		return err
	}
}
