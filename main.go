// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Rotelstat - Rotel amplifier serial to TCP mediator
//
// A daemon that owns the RS-232 link to a Rotel amplifier and lets any
// number of network clients query and control it.

package main

import (
	"os"

	"github.com/Thermoquad/rotelstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
