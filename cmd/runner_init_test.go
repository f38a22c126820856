package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forkline/expansion-cli/internal/config"
)

func TestAnalysisModel(t *testing.T) {
	oc := config.OpenAIConfig{Model: "gpt-4o", MiniModel: "gpt-4o-mini"}
	assert.Equal(t, "gpt-4o-mini", analysisModel(oc))

	oc.MiniModel = ""
	assert.Equal(t, "gpt-4o", analysisModel(oc))
}
