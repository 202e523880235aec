// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/mobilizabr/mobiliza/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
