// Copyright 2025 The Civicmind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/coordinator"
)

func TestSelectIntervention(t *testing.T) {
	cfg := config.Default().Coordination

	auto := cfg
	auto.AutoApprove = true
	assert.IsType(t, coordinator.AutoApprove{}, selectIntervention(auto, os.Stdin))

	// a regular file on stdin is not a terminal
	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	require.NoError(t, err)
	defer f.Close()
	assert.Nil(t, selectIntervention(cfg, f))
}
