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

// Package config loads the shell's and the stub driver's configuration
// from CLI flags and an optional YAML file: flags are declared on the
// command and bound into viper so that CLI overrides file overrides
// default, viper's own precedence rules. Environment variables are not
// read.
package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sabouaram/drvshell/internal/errs"
)

// ShellConfig is the drvshell binary's full configuration.
type ShellConfig struct {
	BaseDir      string
	SocketSuffix string
	Prompt       string
	LogLevel     string
	LogFormat    string
}

// DefaultShellConfig returns the shell's configuration before any flag or
// file override is applied.
func DefaultShellConfig() ShellConfig {
	return ShellConfig{
		BaseDir:      ".",
		SocketSuffix: ".drv.sock",
		Prompt:       "> ",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// RegisterShellFlags declares drvshell's flags on cmd and binds each into
// v, so LoadShellConfig can read the effective value regardless of whether it came
// from the flag, a config file, or the default.
func RegisterShellFlags(cmd *cobra.Command, v *viper.Viper) error {
	def := DefaultShellConfig()

	cmd.PersistentFlags().String("base-dir", def.BaseDir, "directory containing driver sockets")
	cmd.PersistentFlags().String("suffix", def.SocketSuffix, "driver socket filename suffix")
	cmd.PersistentFlags().String("prompt", def.Prompt, "shell prompt string")
	cmd.PersistentFlags().String("log-level", def.LogLevel, "log level (debug, info, warning, error)")
	cmd.PersistentFlags().String("log-format", def.LogFormat, "log format (text, json)")

	for _, name := range []string{"base-dir", "suffix", "prompt", "log-level", "log-format"} {
		if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return errs.CodeConfigInvalid.Error(err)
		}
	}
	return nil
}

// LoadShellConfig reads configFile (if non-empty) into v, then resolves
// the effective ShellConfig from v's bound flag and file values.
func LoadShellConfig(v *viper.Viper, configFile string) (ShellConfig, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return ShellConfig{}, errs.CodeConfigInvalid.Error(err)
		}
	}

	cfg := ShellConfig{
		BaseDir:      v.GetString("base-dir"),
		SocketSuffix: v.GetString("suffix"),
		Prompt:       v.GetString("prompt"),
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
	}

	if cfg.BaseDir == "" {
		return ShellConfig{}, errs.CodeConfigInvalid.Error()
	}
	if cfg.SocketSuffix == "" {
		return ShellConfig{}, errs.CodeConfigInvalid.Error()
	}

	return cfg, nil
}

// DriverConfig is the drvstub binary's configuration: the identity it
// advertises and where it listens.
type DriverConfig struct {
	BaseDir      string
	SocketSuffix string
	Name         string
	Slot         uint32
}

// DefaultDriverConfig returns drvstub's configuration before overrides.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		BaseDir:      ".",
		SocketSuffix: ".drv.sock",
		Name:         "stub",
		Slot:         0,
	}
}

// RegisterDriverFlags declares drvstub's flags on cmd and binds each into v.
func RegisterDriverFlags(cmd *cobra.Command, v *viper.Viper) error {
	def := DefaultDriverConfig()

	cmd.PersistentFlags().String("base-dir", def.BaseDir, "directory to create the driver socket in")
	cmd.PersistentFlags().String("suffix", def.SocketSuffix, "driver socket filename suffix")
	cmd.PersistentFlags().String("name", def.Name, "driver name advertised in its socket filename")
	cmd.PersistentFlags().Uint32("slot", def.Slot, "driver slot advertised in its socket filename")

	for _, name := range []string{"base-dir", "suffix", "name", "slot"} {
		if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return errs.CodeConfigInvalid.Error(err)
		}
	}
	return nil
}

// LoadDriverConfig resolves the effective DriverConfig from v.
func LoadDriverConfig(v *viper.Viper) (DriverConfig, error) {
	cfg := DriverConfig{
		BaseDir:      v.GetString("base-dir"),
		SocketSuffix: v.GetString("suffix"),
		Name:         v.GetString("name"),
		Slot:         uint32(v.GetUint("slot")),
	}

	if cfg.BaseDir == "" || cfg.Name == "" || cfg.SocketSuffix == "" {
		return DriverConfig{}, errs.CodeConfigInvalid.Error()
	}
	return cfg, nil
}

// ParseLevel maps a ShellConfig.LogLevel string onto a logrus.Level,
// falling back to InfoLevel for an unrecognized value rather than
// rejecting startup over a cosmetic misconfiguration.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
