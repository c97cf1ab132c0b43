// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the cowork-connector gateway.
package main

import (
	"os"

	"github.com/coworkhq/cowork-connector/cmd/cowork-connector/app"
	"github.com/coworkhq/cowork-connector/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
